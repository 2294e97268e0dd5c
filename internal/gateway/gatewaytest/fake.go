// Package gatewaytest provides an in-memory payment gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/kudos/internal/gateway/domain"
)

// Fake is a stateful domain.Client. Unknown ids return domain.ErrNotFound.
type Fake struct {
	mu sync.Mutex

	ModeValue     string
	Payments      map[string]*domain.Payment
	Customers     map[string]*domain.Customer
	Mandates      map[string]*domain.Mandate
	Subscriptions map[string]*domain.Subscription

	// Err, when set for an operation name, is returned instead of the fake result.
	Err map[string]error

	Calls                []string
	CreatedSubscriptions []domain.CreateSubscriptionRequest
	CreatedPayments      []domain.CreatePaymentRequest

	seq int
}

func New() *Fake {
	return &Fake{
		ModeValue:     domain.ModeTest,
		Payments:      map[string]*domain.Payment{},
		Customers:     map[string]*domain.Customer{},
		Mandates:      map[string]*domain.Mandate{},
		Subscriptions: map[string]*domain.Subscription{},
		Err:           map[string]error{},
	}
}

func (f *Fake) record(op string) error {
	f.Calls = append(f.Calls, op)
	return f.Err[op]
}

// CallCount returns how often op was invoked.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *Fake) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) Mode() string { return f.ModeValue }

func (f *Fake) GetPayment(_ context.Context, paymentID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_payment"); err != nil {
		return nil, err
	}
	p, ok := f.Payments[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *Fake) CreatePayment(_ context.Context, req domain.CreatePaymentRequest) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_payment"); err != nil {
		return nil, err
	}
	f.CreatedPayments = append(f.CreatedPayments, req)
	id := f.next("tr")
	p := &domain.Payment{
		ID:           id,
		Mode:         f.ModeValue,
		Status:       domain.StatusOpen,
		SequenceType: req.SequenceType,
		CustomerID:   req.CustomerID,
		Amount:       req.Amount,
		Metadata:     req.Metadata,
		CheckoutURL:  "https://checkout.example/" + id,
	}
	if p.SequenceType == "" {
		p.SequenceType = domain.SequenceOneOff
	}
	f.Payments[id] = p
	cp := *p
	return &cp, nil
}

func (f *Fake) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_customer"); err != nil {
		return nil, err
	}
	c, ok := f.Customers[customerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) CreateCustomer(_ context.Context, req domain.CreateCustomerRequest) (*domain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_customer"); err != nil {
		return nil, err
	}
	c := &domain.Customer{ID: f.next("cst"), Name: req.Name, Email: req.Email, Mode: f.ModeValue}
	f.Customers[c.ID] = c
	cp := *c
	return &cp, nil
}

func (f *Fake) GetMandate(_ context.Context, customerID, mandateID string) (*domain.Mandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_mandate"); err != nil {
		return nil, err
	}
	m, ok := f.Mandates[customerID+"/"+mandateID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *Fake) CreateSubscription(_ context.Context, customerID string, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_subscription"); err != nil {
		return nil, err
	}
	f.CreatedSubscriptions = append(f.CreatedSubscriptions, req)
	times := 0
	if req.Times != nil {
		times = *req.Times
	}
	sub := &domain.Subscription{
		ID:         f.next("sub"),
		CustomerID: customerID,
		MandateID:  req.MandateID,
		Mode:       f.ModeValue,
		Status:     domain.SubscriptionActive,
		Amount:     req.Amount,
		Interval:   req.Interval,
		Times:      times,
		StartDate:  req.StartDate,
		Metadata:   req.Metadata,
	}
	f.Subscriptions[customerID+"/"+sub.ID] = sub
	cp := *sub
	return &cp, nil
}

func (f *Fake) GetSubscription(_ context.Context, customerID, subscriptionID string) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_subscription"); err != nil {
		return nil, err
	}
	sub, ok := f.Subscriptions[customerID+"/"+subscriptionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *Fake) CancelSubscription(_ context.Context, customerID, subscriptionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("cancel_subscription"); err != nil {
		return false, err
	}
	sub, ok := f.Subscriptions[customerID+"/"+subscriptionID]
	if !ok {
		return false, domain.ErrNotFound
	}
	sub.Status = domain.SubscriptionCanceled
	return true, nil
}

// AddCustomer registers a customer with a mandate in the given status.
func (f *Fake) AddCustomer(customerID, mandateID, mandateStatus string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Customers[customerID] = &domain.Customer{ID: customerID, Mode: f.ModeValue}
	if mandateID != "" {
		f.Mandates[customerID+"/"+mandateID] = &domain.Mandate{ID: mandateID, Status: mandateStatus, Method: "directdebit"}
	}
}

// SetPayment stores or replaces a payment.
func (f *Fake) SetPayment(p *domain.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Payments[p.ID] = p
}

// SetSubscription stores or replaces a provider subscription.
func (f *Fake) SetSubscription(sub *domain.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subscriptions[sub.CustomerID+"/"+sub.ID] = sub
}

var _ domain.Client = (*Fake)(nil)
