package mollie

import (
	"time"

	"github.com/smallbiznis/kudos/internal/gateway/domain"
)

type link struct {
	Href string `json:"href"`
	Type string `json:"type"`
}

type paymentLinks struct {
	Checkout    *link `json:"checkout,omitempty"`
	Refunds     *link `json:"refunds,omitempty"`
	Chargebacks *link `json:"chargebacks,omitempty"`
}

type paymentResource struct {
	ID              string          `json:"id"`
	Mode            string          `json:"mode"`
	Status          string          `json:"status"`
	Method          string          `json:"method"`
	SequenceType    string          `json:"sequenceType"`
	Description     string          `json:"description"`
	CustomerID      string          `json:"customerId"`
	MandateID       string          `json:"mandateId"`
	SubscriptionID  string          `json:"subscriptionId"`
	Amount          domain.Amount   `json:"amount"`
	AmountRefunded  *domain.Amount  `json:"amountRefunded,omitempty"`
	AmountRemaining *domain.Amount  `json:"amountRemaining,omitempty"`
	Metadata        domain.Metadata `json:"metadata"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	Links           paymentLinks    `json:"_links"`
}

func (r paymentResource) toDomain() *domain.Payment {
	p := &domain.Payment{
		ID:             r.ID,
		Mode:           r.Mode,
		Status:         r.Status,
		Method:         r.Method,
		SequenceType:   r.SequenceType,
		Description:    r.Description,
		CustomerID:     r.CustomerID,
		MandateID:      r.MandateID,
		SubscriptionID: r.SubscriptionID,
		Amount:         r.Amount,
		Refunded:       r.AmountRefunded,
		Remaining:      r.AmountRemaining,
		Metadata:       r.Metadata,
		PaidAt:         r.PaidAt,
		CreatedAt:      r.CreatedAt,
	}
	if r.Links.Checkout != nil {
		p.CheckoutURL = r.Links.Checkout.Href
	}
	if r.Links.Refunds != nil {
		p.RefundsURL = r.Links.Refunds.Href
	}
	if r.Links.Chargebacks != nil {
		p.ChargebacksURL = r.Links.Chargebacks.Href
	}
	return p
}

type customerResource struct {
	ID    string `json:"id"`
	Mode  string `json:"mode"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (r customerResource) toDomain() *domain.Customer {
	return &domain.Customer{ID: r.ID, Mode: r.Mode, Name: r.Name, Email: r.Email}
}

type mandateResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Method string `json:"method"`
}

type subscriptionResource struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customerId"`
	MandateID   string          `json:"mandateId"`
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	Amount      domain.Amount   `json:"amount"`
	Interval    string          `json:"interval"`
	Times       int             `json:"times"`
	StartDate   string          `json:"startDate"`
	Description string          `json:"description"`
	Metadata    domain.Metadata `json:"metadata"`
}

func (r subscriptionResource) toDomain() *domain.Subscription {
	return &domain.Subscription{
		ID:          r.ID,
		CustomerID:  r.CustomerID,
		MandateID:   r.MandateID,
		Mode:        r.Mode,
		Status:      r.Status,
		Amount:      r.Amount,
		Interval:    r.Interval,
		Times:       r.Times,
		StartDate:   r.StartDate,
		Description: r.Description,
		Metadata:    r.Metadata,
	}
}

type createCustomerBody struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type createPaymentBody struct {
	Amount       domain.Amount     `json:"amount"`
	Description  string            `json:"description"`
	RedirectURL  string            `json:"redirectUrl,omitempty"`
	WebhookURL   string            `json:"webhookUrl,omitempty"`
	CustomerID   string            `json:"customerId,omitempty"`
	SequenceType string            `json:"sequenceType,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type createSubscriptionBody struct {
	Amount      domain.Amount     `json:"amount"`
	Interval    string            `json:"interval"`
	Description string            `json:"description"`
	WebhookURL  string            `json:"webhookUrl,omitempty"`
	MandateID   string            `json:"mandateId,omitempty"`
	Times       *int              `json:"times,omitempty"`
	StartDate   string            `json:"startDate,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type errorResponse struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
