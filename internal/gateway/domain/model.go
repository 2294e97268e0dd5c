package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ModeTest = "test"
	ModeLive = "live"
)

// Payment statuses reported by the provider.
const (
	StatusOpen       = "open"
	StatusPending    = "pending"
	StatusAuthorized = "authorized"
	StatusPaid       = "paid"
	StatusCanceled   = "canceled"
	StatusExpired    = "expired"
	StatusFailed     = "failed"
)

const (
	SequenceOneOff    = "oneoff"
	SequenceFirst     = "first"
	SequenceRecurring = "recurring"
)

const (
	MandateValid   = "valid"
	MandatePending = "pending"
	MandateInvalid = "invalid"
)

const (
	SubscriptionPending   = "pending"
	SubscriptionActive    = "active"
	SubscriptionCanceled  = "canceled"
	SubscriptionSuspended = "suspended"
	SubscriptionCompleted = "completed"
)

// Amount is a provider money value. Value keeps two decimals on the wire.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

type wireAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireAmount{
		Value:    a.Value.StringFixed(2),
		Currency: strings.ToUpper(a.Currency),
	})
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var w wireAmount
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	value := decimal.Zero
	if strings.TrimSpace(w.Value) != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(w.Value))
		if err != nil {
			return err
		}
		value = parsed
	}
	a.Value = value
	a.Currency = strings.ToUpper(strings.TrimSpace(w.Currency))
	return nil
}

// Metadata is the engine-owned key/value bag round-tripped through the provider.
// Values may come back as strings or numbers depending on who wrote them.
type Metadata map[string]string

func (m *Metadata) UnmarshalJSON(data []byte) error {
	out := Metadata{}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch value := raw.(type) {
	case map[string]any:
		for k, v := range value {
			if s, ok := metadataString(v); ok {
				out[k] = s
			}
		}
	case string:
		// metadata stored as an encoded JSON document
		var nested map[string]any
		if err := json.Unmarshal([]byte(value), &nested); err == nil {
			for k, v := range nested {
				if s, ok := metadataString(v); ok {
					out[k] = s
				}
			}
		}
	}
	*m = out
	return nil
}

func metadataString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[key])
}

func (m Metadata) OrderID() string    { return m.Get("order_id") }
func (m Metadata) CampaignID() string { return m.Get("campaign_id") }
func (m Metadata) DonorID() string    { return m.Get("donor_id") }
func (m Metadata) Interval() string   { return m.Get("interval") }

// Years returns the subscription duration; unparsable values count as unbounded.
func (m Metadata) Years() int {
	raw := m.Get("years")
	if raw == "" {
		return 0
	}
	years, err := strconv.Atoi(raw)
	if err != nil || years < 0 {
		return 0
	}
	return years
}

// Payment is the provider's view of a single payment.
type Payment struct {
	ID             string
	Mode           string
	Status         string
	Method         string
	SequenceType   string
	Description    string
	CustomerID     string
	MandateID      string
	SubscriptionID string
	Amount         Amount
	Refunded       *Amount
	Remaining      *Amount
	Metadata       Metadata
	CheckoutURL    string
	RefundsURL     string
	ChargebacksURL string
	PaidAt         *time.Time
	CreatedAt      time.Time
}

// HasRefunds reports whether any amount of the payment was refunded.
func (p *Payment) HasRefunds() bool {
	if p == nil {
		return false
	}
	if p.RefundsURL != "" {
		return true
	}
	return p.Refunded != nil && p.Refunded.Value.IsPositive()
}

func (p *Payment) HasChargebacks() bool {
	return p != nil && p.ChargebacksURL != ""
}

func (p *Payment) AmountRefunded() Amount {
	if p == nil || p.Refunded == nil {
		return Amount{Value: decimal.Zero, Currency: p.currency()}
	}
	return *p.Refunded
}

func (p *Payment) AmountRemaining() Amount {
	if p == nil || p.Remaining == nil {
		return Amount{Value: decimal.Zero, Currency: p.currency()}
	}
	return *p.Remaining
}

func (p *Payment) IsPaid() bool {
	if p == nil {
		return false
	}
	return p.PaidAt != nil || p.Status == StatusPaid
}

func (p *Payment) HasSequenceTypeFirst() bool {
	return p != nil && p.SequenceType == SequenceFirst
}

func (p *Payment) HasSequenceTypeRecurring() bool {
	return p != nil && p.SequenceType == SequenceRecurring
}

func (p *Payment) currency() string {
	if p == nil {
		return ""
	}
	return p.Amount.Currency
}

type Customer struct {
	ID    string
	Name  string
	Email string
	Mode  string
}

type Mandate struct {
	ID     string
	Status string
	Method string
}

// IsUsable reports whether recurring charges may be created against the mandate.
func (m *Mandate) IsUsable() bool {
	if m == nil {
		return false
	}
	return m.Status == MandateValid || m.Status == MandatePending
}

type Subscription struct {
	ID          string
	CustomerID  string
	MandateID   string
	Mode        string
	Status      string
	Amount      Amount
	Interval    string
	Times       int
	StartDate   string
	Description string
	Metadata    Metadata
}

type CreateCustomerRequest struct {
	Name  string
	Email string
}

type CreatePaymentRequest struct {
	Amount       Amount
	Description  string
	RedirectURL  string
	WebhookURL   string
	CustomerID   string
	SequenceType string
	Metadata     Metadata
}

type CreateSubscriptionRequest struct {
	Amount      Amount
	Interval    string
	Description string
	WebhookURL  string
	MandateID   string
	// Times is omitted when nil.
	Times *int
	// StartDate is omitted when empty.
	StartDate string
	Metadata  Metadata
}
