package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Webhook outcomes. They label logs and metrics; the HTTP answer does not depend on them.
const (
	OutcomeCreated          = "created"
	OutcomeUpdated          = "updated"
	OutcomeRefunded         = "refunded"
	OutcomeDuplicate        = "duplicate"
	OutcomeNotFound         = "not_found"
	OutcomeGatewayError     = "gateway_error"
	OutcomePersistenceError = "persistence_error"
	OutcomeOrphanRejected   = "orphan_rejected"
	OutcomeInvalidRequest   = "invalid_request"
)

// WebhookResult describes what one webhook delivery did.
type WebhookResult struct {
	PaymentID     string       `json:"payment_id"`
	Outcome       string       `json:"outcome"`
	OrderID       string       `json:"order_id,omitempty"`
	TransactionID snowflake.ID `json:"transaction_id,omitempty"`
	Status        string       `json:"status,omitempty"`
}

type CreatePaymentRequest struct {
	CampaignID   string `json:"campaign_id" form:"campaign_id"`
	Amount       string `json:"amount" form:"amount"`
	Email        string `json:"email" form:"email"`
	Name         string `json:"name" form:"name"`
	BusinessName string `json:"business_name" form:"business_name"`
	Street       string `json:"street" form:"street"`
	Postcode     string `json:"postcode" form:"postcode"`
	City         string `json:"city" form:"city"`
	Country      string `json:"country" form:"country"`
	Message      string `json:"message" form:"message"`
	// Interval is empty for a one-off donation.
	Interval    string `json:"interval" form:"interval"`
	Years       int    `json:"years" form:"years"`
	RedirectURL string `json:"redirect_url" form:"redirect_url"`
}

type CreatePaymentResponse struct {
	OrderID       string       `json:"order_id"`
	TransactionID snowflake.ID `json:"transaction_id"`
	PaymentID     string       `json:"payment_id"`
	CheckoutURL   string       `json:"checkout_url"`
}

type Service interface {
	HandleWebhook(ctx context.Context, paymentID string) (WebhookResult, error)
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResponse, error)
}

var (
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrOrphanRejected      = errors.New("orphan_payment_rejected")
	ErrInvalidCampaign     = errors.New("invalid_campaign")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrAmountTooLow        = errors.New("amount_below_minimum")
	ErrAmountTooHigh       = errors.New("amount_above_maximum")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrRecurringNotAllowed = errors.New("recurring_not_allowed")
	ErrInvalidFrequency    = errors.New("invalid_frequency")
	ErrInvalidDuration     = errors.New("invalid_duration")
)

// PersistenceError reports a record the store refused to save. Fields holds
// the attempted state so the change can be reconciled by hand.
type PersistenceError struct {
	Record string
	Fields map[string]any
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Record, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
