package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	gatewaydomain "github.com/smallbiznis/kudos/internal/gateway/domain"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
)

// Subscription is a recurring donation agreement created from a paid first payment.
type Subscription struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	TransactionID        snowflake.ID    `gorm:"column:transaction_id;not null;uniqueIndex" json:"transaction_id"`
	CustomerID           string          `gorm:"column:customer_id;not null" json:"customer_id"`
	Frequency            string          `gorm:"column:frequency;not null" json:"frequency"`
	Years                int             `gorm:"column:years;not null" json:"years"`
	Value                decimal.Decimal `gorm:"column:value;type:numeric(12,2);not null" json:"value"`
	Currency             string          `gorm:"column:currency;size:3" json:"currency"`
	VendorSubscriptionID string          `gorm:"column:vendor_subscription_id;index" json:"vendor_subscription_id"`
	Status               string          `gorm:"column:status;not null" json:"status"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// IsActive reports whether the provider still charges this subscription.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == gatewaydomain.SubscriptionActive
}

type ListFilter struct {
	Status   string
	BeforeID int64
	Limit    int
}

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Subscription, error)
	FindByTransactionID(ctx context.Context, transactionID snowflake.ID) (*Subscription, error)
	FindByVendorID(ctx context.Context, vendorSubscriptionID string) (*Subscription, error)
	List(ctx context.Context, filter ListFilter) ([]*Subscription, error)
	Save(ctx context.Context, sub *Subscription) error
}

// Scheduler decides whether a paid first payment turns into a recurring
// subscription and keeps local subscription state in line with the provider.
type Scheduler interface {
	MaybeCreate(ctx context.Context, tx *transactiondomain.Transaction, mandateID, interval string, years int) (*Subscription, error)
	Cancel(ctx context.Context, subscriptionID, customerID string) (bool, error)
	SyncStatus(ctx context.Context, sub *Subscription, remote *gatewaydomain.Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context, filter ListFilter) ([]*Subscription, error)
}

var (
	ErrInvalidInterval      = errors.New("invalid_interval")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrMandateInvalid       = errors.New("mandate_invalid")
	ErrMissingCustomer      = errors.New("missing_customer")
)
