package authorization

import (
	"context"
	"errors"
)

// Roles an API key can carry.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
	RoleSystem = "system"
)

// Actor is the authenticated caller of an admin operation.
type Actor struct {
	Type string
	ID   string
	Role string
}

// Subject returns the casbin subject for the actor.
func (a Actor) Subject() string {
	if a.Type == RoleSystem {
		return "system"
	}
	return a.Type + ":" + a.ID
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
