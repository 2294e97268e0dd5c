package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPublishRoutesByName(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var paid, all []string
	bus.Subscribe(func(_ context.Context, evt Event) { paid = append(paid, evt.Name()) }, NameTransactionPaid)
	bus.Subscribe(func(_ context.Context, evt Event) { all = append(all, evt.Name()) })

	bus.Publish(context.Background(), TransactionPaid{PaymentID: "tr_1"})
	bus.Publish(context.Background(), ReconcileFailed{PaymentID: "tr_2", Err: errors.New("boom")})

	assert.Equal(t, []string{NameTransactionPaid}, paid)
	assert.Equal(t, []string{NameTransactionPaid, NameReconcileFailed}, all)
}

func TestPublishSurvivesPanickingHandler(t *testing.T) {
	bus := NewBus(zap.NewNop())

	called := false
	bus.Subscribe(func(context.Context, Event) { panic("observer bug") }, NameSubscriptionCreated)
	bus.Subscribe(func(context.Context, Event) { called = true }, NameSubscriptionCreated)

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), SubscriptionCreated{})
	})
	assert.True(t, called)
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(context.Background(), TransactionPaid{}) })
}
