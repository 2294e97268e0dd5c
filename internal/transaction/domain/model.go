package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const OrderIDPrefix = "kdo_"

// Transaction is one payment attempt as known locally. It is created before
// the provider assigns a payment id and later matched by order id.
type Transaction struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderID              string          `gorm:"column:order_id;not null;uniqueIndex" json:"order_id"`
	VendorPaymentID      string          `gorm:"column:vendor_payment_id;index" json:"vendor_payment_id,omitempty"`
	DonorID              *snowflake.ID   `gorm:"column:donor_id;index" json:"donor_id,omitempty"`
	CampaignID           *snowflake.ID   `gorm:"column:campaign_id;index" json:"campaign_id,omitempty"`
	CustomerID           string          `gorm:"column:customer_id" json:"customer_id,omitempty"`
	Value                decimal.Decimal `gorm:"column:value;type:numeric(12,2);not null" json:"value"`
	Currency             string          `gorm:"column:currency;size:3" json:"currency"`
	Status               string          `gorm:"column:status;not null;index" json:"status"`
	Method               string          `gorm:"column:method" json:"method,omitempty"`
	Mode                 string          `gorm:"column:mode" json:"mode"`
	SequenceType         string          `gorm:"column:sequence_type" json:"sequence_type"`
	Refunds              datatypes.JSON  `gorm:"column:refunds" json:"refunds,omitempty"`
	VendorSubscriptionID *string         `gorm:"column:vendor_subscription_id" json:"vendor_subscription_id,omitempty"`
	Message              string          `gorm:"column:message" json:"message,omitempty"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"not null" json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

// Refund is the refund summary merged from the provider payment.
type Refund struct {
	Refunded  decimal.Decimal `json:"refunded"`
	Remaining decimal.Decimal `json:"remaining"`
	Currency  string          `json:"currency,omitempty"`
}

// Refund decodes the stored refund summary. A transaction without refunds returns nil.
func (t *Transaction) Refund() (*Refund, error) {
	if t == nil || len(t.Refunds) == 0 || string(t.Refunds) == "null" {
		return nil, nil
	}
	var r Refund
	if err := json.Unmarshal(t.Refunds, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Same reports whether r carries the same amounts as other. A nil summary
// matches nothing.
func (r *Refund) Same(other Refund) bool {
	return r != nil &&
		r.Refunded.Equal(other.Refunded) &&
		r.Remaining.Equal(other.Remaining) &&
		r.Currency == other.Currency
}

func (t *Transaction) SetRefund(r Refund) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	t.Refunds = datatypes.JSON(raw)
	return nil
}

// Fields returns the persisted attributes, used when a save fails and the
// attempted state has to be reported.
func (t *Transaction) Fields() map[string]any {
	fields := map[string]any{
		"id":                t.ID.String(),
		"order_id":          t.OrderID,
		"vendor_payment_id": t.VendorPaymentID,
		"customer_id":       t.CustomerID,
		"value":             t.Value.StringFixed(2),
		"currency":          t.Currency,
		"status":            t.Status,
		"method":            t.Method,
		"mode":              t.Mode,
		"sequence_type":     t.SequenceType,
	}
	if t.DonorID != nil {
		fields["donor_id"] = t.DonorID.String()
	}
	if t.CampaignID != nil {
		fields["campaign_id"] = t.CampaignID.String()
	}
	if t.VendorSubscriptionID != nil {
		fields["vendor_subscription_id"] = *t.VendorSubscriptionID
	}
	if len(t.Refunds) > 0 {
		fields["refunds"] = string(t.Refunds)
	}
	return fields
}

type ListFilter struct {
	CampaignID *snowflake.ID
	Status     string
	BeforeID   int64
	Limit      int
}

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Transaction, error)
	// FindByOrderOrPayment matches order_id OR vendor_payment_id.
	FindByOrderOrPayment(ctx context.Context, orderID, paymentID string) (*Transaction, error)
	FindByOrderID(ctx context.Context, orderID string) (*Transaction, error)
	FindByCampaign(ctx context.Context, campaignID snowflake.ID, status string) ([]*Transaction, error)
	List(ctx context.Context, filter ListFilter) ([]*Transaction, error)
	Save(ctx context.Context, tx *Transaction) error
}
