package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("gateway_resource_not_found")
	ErrInvalidConfig = errors.New("gateway_invalid_config")
)

// GatewayError is returned for transport failures and non-404 error responses.
type GatewayError struct {
	Operation  string
	StatusCode int
	Title      string
	Detail     string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("gateway %s failed: %v", e.Operation, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("gateway %s failed (%d): %s", e.Operation, e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("gateway %s failed (%d)", e.Operation, e.StatusCode)
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsGatewayError reports whether err carries a *GatewayError.
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}
