package domain

import "context"

// Client is the subset of the payment provider API used by kudos.
// Lookups return ErrNotFound for unknown resources and *GatewayError otherwise.
type Client interface {
	Mode() string

	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error)

	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error)
	GetMandate(ctx context.Context, customerID, mandateID string) (*Mandate, error)

	CreateSubscription(ctx context.Context, customerID string, req CreateSubscriptionRequest) (*Subscription, error)
	GetSubscription(ctx context.Context, customerID, subscriptionID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, customerID, subscriptionID string) (bool, error)
}
