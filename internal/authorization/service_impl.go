package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/kudos/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectCampaign     = "campaign"
	ObjectTransaction  = "transaction"
	ObjectSubscription = "subscription"
	ObjectAPIKey       = "api_key"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionCampaignView   = "campaign.view"
	ActionCampaignCreate = "campaign.create"

	ActionTransactionView    = "transaction.view"
	ActionTransactionReceipt = "transaction.receipt"

	ActionSubscriptionView   = "subscription.view"
	ActionSubscriptionCancel = "subscription.cancel"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRotate = "api_key.rotate"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionAuditLogView = "audit_log.view"
)

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	if strings.TrimSpace(actor.Type) == "" || (actor.Type != RoleSystem && strings.TrimSpace(actor.ID) == "") {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := roleFor(actor)
	if err != nil {
		s.auditDecision(ctx, actor, "authorization.denied", object, action)
		return err
	}

	subject := actor.Subject()
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDecision(ctx, actor, "authorization.denied", object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditDecision(ctx, actor, "authorization.granted", object, action)
	}
	return nil
}

func roleFor(actor Actor) (string, error) {
	if actor.Type == RoleSystem {
		return "role:system", nil
	}
	switch role := strings.ToLower(strings.TrimSpace(actor.Role)); role {
	case RoleAdmin, RoleViewer:
		return fmt.Sprintf("role:%s", role), nil
	default:
		return "", ErrInvalidRole
	}
}

// ensureGrouping keeps exactly one role link for subject.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDecision(ctx context.Context, actor Actor, auditAction string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if actor.ID != "" {
		id := actor.ID
		actorID = &id
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actor.Type, actorID, auditAction, "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"role":    actor.Role,
		"subject": actor.Subject(),
	})
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionAPIKeyCreate, ActionAPIKeyRotate, ActionAPIKeyRevoke, ActionSubscriptionCancel:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	viewer := [][]string{
		{ObjectCampaign, ActionCampaignView},
		{ObjectTransaction, ActionTransactionView},
		{ObjectTransaction, ActionTransactionReceipt},
		{ObjectSubscription, ActionSubscriptionView},
	}
	admin := append([][]string{
		{ObjectCampaign, ActionCampaignCreate},
		{ObjectSubscription, ActionSubscriptionCancel},
		{ObjectAPIKey, ActionAPIKeyView},
		{ObjectAPIKey, ActionAPIKeyCreate},
		{ObjectAPIKey, ActionAPIKeyRotate},
		{ObjectAPIKey, ActionAPIKeyRevoke},
		{ObjectAuditLog, ActionAuditLogView},
	}, viewer...)

	policies := make([][]string, 0, len(viewer)+2*len(admin))
	for _, p := range viewer {
		policies = append(policies, []string{"role:viewer", p[0], p[1]})
	}
	for _, p := range admin {
		policies = append(policies, []string{"role:admin", p[0], p[1]})
		policies = append(policies, []string{"role:system", p[0], p[1]})
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
