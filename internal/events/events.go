package events

import (
	subscriptiondomain "github.com/smallbiznis/kudos/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
)

const (
	NameTransactionUpdated  = "transaction.updated"
	NameTransactionPaid     = "transaction.paid"
	NameTransactionRefunded = "transaction.refunded"
	NameSubscriptionCreated = "subscription.created"
	NameReconcileFailed     = "reconcile.failed"
)

// Event is a typed notification published during reconciliation.
type Event interface {
	Name() string
}

// TransactionUpdated fires after a webhook changed and persisted a transaction.
type TransactionUpdated struct {
	Transaction    *transactiondomain.Transaction
	PreviousStatus string
	PaymentID      string
}

func (TransactionUpdated) Name() string { return NameTransactionUpdated }

// TransactionPaid fires once per transition into paid without refunds or chargebacks.
type TransactionPaid struct {
	Transaction *transactiondomain.Transaction
	PaymentID   string
}

func (TransactionPaid) Name() string { return NameTransactionPaid }

type TransactionRefunded struct {
	Transaction *transactiondomain.Transaction
	Refund      transactiondomain.Refund
	PaymentID   string
}

func (TransactionRefunded) Name() string { return NameTransactionRefunded }

type SubscriptionCreated struct {
	Subscription *subscriptiondomain.Subscription
	Transaction  *transactiondomain.Transaction
}

func (SubscriptionCreated) Name() string { return NameSubscriptionCreated }

// ReconcileFailed carries the attempted state of a transaction that could not be stored.
type ReconcileFailed struct {
	PaymentID string
	OrderID   string
	Fields    map[string]any
	Err       error
}

func (ReconcileFailed) Name() string { return NameReconcileFailed }
