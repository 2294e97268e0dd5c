package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kudos/internal/clock"
	"github.com/smallbiznis/kudos/internal/config"
	donordomain "github.com/smallbiznis/kudos/internal/donor/domain"
	donorrepo "github.com/smallbiznis/kudos/internal/donor/repository"
	"github.com/smallbiznis/kudos/internal/events"
	gatewaydomain "github.com/smallbiznis/kudos/internal/gateway/domain"
	"github.com/smallbiznis/kudos/internal/gateway/gatewaytest"
	subscriptiondomain "github.com/smallbiznis/kudos/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/kudos/internal/subscription/repository"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
	"github.com/smallbiznis/kudos/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc     subscriptiondomain.Scheduler
	gateway *gatewaytest.Fake
	repo    subscriptiondomain.Repository
	donors  donordomain.Repository
	created []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t, &subscriptiondomain.Subscription{}, &donordomain.Donor{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		gateway: gatewaytest.New(),
		repo:    subscriptionrepo.Provide(db),
		donors:  donorrepo.Provide(db),
	}
	bus := events.NewBus(zap.NewNop())
	bus.Subscribe(func(_ context.Context, evt events.Event) { f.created = append(f.created, evt) }, events.NameSubscriptionCreated)

	f.svc = NewService(Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)),
		Gateway:  f.gateway,
		Repo:     f.repo,
		Donors:   f.donors,
		Bus:      bus,
		Donation: config.NewStaticDonationConfigHolder(config.DefaultDonationConfig()),
		Config:   config.Config{PublicURL: "https://kudos.example"},
	})
	return f
}

func paidFirstTransaction(mode string) *transactiondomain.Transaction {
	return &transactiondomain.Transaction{
		ID:           snowflake.ID(100),
		OrderID:      "kdo_abc",
		CustomerID:   "cst_1",
		Value:        decimal.RequireFromString("10.00"),
		Currency:     "EUR",
		Status:       gatewaydomain.StatusPaid,
		Mode:         mode,
		SequenceType: gatewaydomain.SequenceFirst,
	}
}

func TestMaybeCreateBoundedSubscription(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_1", "mdt_1", gatewaydomain.MandateValid)

	sub, err := f.svc.MaybeCreate(context.Background(), paidFirstTransaction(gatewaydomain.ModeLive), "mdt_1", "1 month", 2)
	require.NoError(t, err)
	require.NotNil(t, sub)

	require.Len(t, f.gateway.CreatedSubscriptions, 1)
	req := f.gateway.CreatedSubscriptions[0]
	require.NotNil(t, req.Times)
	assert.Equal(t, 23, *req.Times)
	assert.Equal(t, "2024-04-10", req.StartDate)
	assert.Equal(t, "mdt_1", req.MandateID)
	assert.Equal(t, "https://kudos.example/payment/webhook", req.WebhookURL)
	assert.Equal(t, "kdo_abc", req.Metadata.OrderID())

	stored, err := f.repo.FindByTransactionID(context.Background(), snowflake.ID(100))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, sub.VendorSubscriptionID, stored.VendorSubscriptionID)
	assert.Equal(t, gatewaydomain.SubscriptionActive, stored.Status)
	assert.Equal(t, "1 month", stored.Frequency)
	assert.Equal(t, 2, stored.Years)
	assert.Len(t, f.created, 1)
}

func TestMaybeCreateContinuousTestModeOmitsTimesAndStartDate(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_1", "mdt_1", gatewaydomain.MandatePending)

	_, err := f.svc.MaybeCreate(context.Background(), paidFirstTransaction(gatewaydomain.ModeTest), "mdt_1", "3 months", 0)
	require.NoError(t, err)

	require.Len(t, f.gateway.CreatedSubscriptions, 1)
	assert.Nil(t, f.gateway.CreatedSubscriptions[0].Times)
	assert.Empty(t, f.gateway.CreatedSubscriptions[0].StartDate)
}

func TestMaybeCreateInvalidMandate(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_1", "mdt_1", gatewaydomain.MandateInvalid)

	sub, err := f.svc.MaybeCreate(context.Background(), paidFirstTransaction(gatewaydomain.ModeTest), "mdt_1", "1 month", 1)
	assert.ErrorIs(t, err, subscriptiondomain.ErrMandateInvalid)
	assert.Nil(t, sub)
	assert.Zero(t, f.gateway.CallCount("create_subscription"))

	stored, err := f.repo.FindByTransactionID(context.Background(), snowflake.ID(100))
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestMaybeCreateMissingMandate(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_1", "", "")

	_, err := f.svc.MaybeCreate(context.Background(), paidFirstTransaction(gatewaydomain.ModeTest), "mdt_gone", "1 month", 1)
	assert.ErrorIs(t, err, subscriptiondomain.ErrMandateInvalid)
	assert.Zero(t, f.gateway.CallCount("create_subscription"))
}

func TestMaybeCreateIsIdempotentPerTransaction(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_1", "mdt_1", gatewaydomain.MandateValid)
	tx := paidFirstTransaction(gatewaydomain.ModeTest)

	first, err := f.svc.MaybeCreate(context.Background(), tx, "mdt_1", "1 month", 0)
	require.NoError(t, err)
	second, err := f.svc.MaybeCreate(context.Background(), tx, "mdt_1", "1 month", 0)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.gateway.CallCount("create_subscription"))
}

func TestMaybeCreateGatewayFailureLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_1", "mdt_1", gatewaydomain.MandateValid)
	f.gateway.Err["create_subscription"] = &gatewaydomain.GatewayError{Operation: "create_subscription", StatusCode: 422}

	sub, err := f.svc.MaybeCreate(context.Background(), paidFirstTransaction(gatewaydomain.ModeTest), "mdt_1", "1 month", 1)
	assert.True(t, gatewaydomain.IsGatewayError(err))
	assert.Nil(t, sub)

	stored, err := f.repo.FindByTransactionID(context.Background(), snowflake.ID(100))
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestMaybeCreateRejectsWeeksWithYears(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_1", "mdt_1", gatewaydomain.MandateValid)

	_, err := f.svc.MaybeCreate(context.Background(), paidFirstTransaction(gatewaydomain.ModeTest), "mdt_1", "2 weeks", 1)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidInterval)
	assert.Empty(t, f.gateway.Calls)
}

func TestMaybeCreatePrefersDonorCustomerID(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_donor", "mdt_1", gatewaydomain.MandateValid)

	donor := &donordomain.Donor{ID: snowflake.ID(7), Email: "donor@example.org", VendorCustomerID: "cst_donor"}
	require.NoError(t, f.donors.Save(context.Background(), donor))

	tx := paidFirstTransaction(gatewaydomain.ModeTest)
	tx.DonorID = &donor.ID
	sub, err := f.svc.MaybeCreate(context.Background(), tx, "mdt_1", "1 year", 0)
	require.NoError(t, err)
	assert.Equal(t, "cst_donor", sub.CustomerID)
}

func TestMaybeCreateSendsYearsAsMonths(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_1", "mdt_1", gatewaydomain.MandateValid)

	sub, err := f.svc.MaybeCreate(context.Background(), paidFirstTransaction(gatewaydomain.ModeTest), "mdt_1", "1 year", 3)
	require.NoError(t, err)

	req := f.gateway.CreatedSubscriptions[0]
	assert.Equal(t, "12 months", req.Interval)
	require.NotNil(t, req.Times)
	assert.Equal(t, 2, *req.Times)
	assert.Equal(t, "1 year", sub.Frequency)
}

func TestMaybeCreateRejectsSingleChargeTerm(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_1", "mdt_1", gatewaydomain.MandateValid)

	sub, err := f.svc.MaybeCreate(context.Background(), paidFirstTransaction(gatewaydomain.ModeTest), "mdt_1", "12 months", 1)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidInterval)
	assert.Nil(t, sub)
	assert.Zero(t, f.gateway.CallCount("create_subscription"))
}

// staleLookupRepo misses the first transaction lookup, as a delivery that
// read before a concurrent one stored its subscription would.
type staleLookupRepo struct {
	subscriptiondomain.Repository
	missed bool
}

func (r *staleLookupRepo) FindByTransactionID(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if !r.missed {
		r.missed = true
		return nil, nil
	}
	return r.Repository.FindByTransactionID(ctx, id)
}

func TestMaybeCreateCancelsProviderDuplicateOnConflict(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddCustomer("cst_1", "mdt_1", gatewaydomain.MandateValid)
	f.gateway.SetSubscription(&gatewaydomain.Subscription{ID: "sub_winner", CustomerID: "cst_1", Status: gatewaydomain.SubscriptionActive})
	require.NoError(t, f.repo.Save(context.Background(), &subscriptiondomain.Subscription{
		ID:                   snowflake.ID(5),
		TransactionID:        snowflake.ID(100),
		CustomerID:           "cst_1",
		Frequency:            "1 month",
		Value:                decimal.NewFromInt(10),
		Currency:             "EUR",
		VendorSubscriptionID: "sub_winner",
		Status:               gatewaydomain.SubscriptionActive,
	}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	svc := NewService(Params{
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)),
		Gateway: f.gateway,
		Repo:    &staleLookupRepo{Repository: f.repo},
		Donors:  f.donors,
	})

	sub, err := svc.MaybeCreate(context.Background(), paidFirstTransaction(gatewaydomain.ModeTest), "mdt_1", "1 month", 0)
	require.NoError(t, err)
	assert.Equal(t, "sub_winner", sub.VendorSubscriptionID)
	assert.Equal(t, 1, f.gateway.CallCount("create_subscription"))
	assert.Equal(t, 1, f.gateway.CallCount("cancel_subscription"))

	active := 0
	for _, remote := range f.gateway.Subscriptions {
		if remote.Status == gatewaydomain.SubscriptionActive {
			active++
			assert.Equal(t, "sub_winner", remote.ID)
		}
	}
	assert.Equal(t, 1, active)
}

func TestCancelShortCircuitsWhenNotActive(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Save(context.Background(), &subscriptiondomain.Subscription{
		ID:                   snowflake.ID(5),
		TransactionID:        snowflake.ID(100),
		CustomerID:           "cst_1",
		Frequency:            "1 month",
		Value:                decimal.NewFromInt(10),
		Currency:             "EUR",
		VendorSubscriptionID: "sub_9",
		Status:               gatewaydomain.SubscriptionCanceled,
	}))

	ok, err := f.svc.Cancel(context.Background(), "5", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, f.gateway.CallCount("cancel_subscription"))
}

func TestCancelActiveDoesNotMutateLocalStatus(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetSubscription(&gatewaydomain.Subscription{ID: "sub_9", CustomerID: "cst_1", Status: gatewaydomain.SubscriptionActive})
	require.NoError(t, f.repo.Save(context.Background(), &subscriptiondomain.Subscription{
		ID:                   snowflake.ID(5),
		TransactionID:        snowflake.ID(100),
		CustomerID:           "cst_1",
		Frequency:            "1 month",
		Value:                decimal.NewFromInt(10),
		Currency:             "EUR",
		VendorSubscriptionID: "sub_9",
		Status:               gatewaydomain.SubscriptionActive,
	}))

	ok, err := f.svc.Cancel(context.Background(), "sub_9", "")
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := f.repo.FindByVendorID(context.Background(), "sub_9")
	require.NoError(t, err)
	assert.Equal(t, gatewaydomain.SubscriptionActive, stored.Status)
}

func TestCancelWithCustomerSkipsLocalLookup(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetSubscription(&gatewaydomain.Subscription{ID: "sub_remote", CustomerID: "cst_9", Status: gatewaydomain.SubscriptionActive})

	ok, err := f.svc.Cancel(context.Background(), "sub_remote", "cst_9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, f.gateway.CallCount("cancel_subscription"))
}

func TestCancelWithCustomerIgnoresLocalStatus(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetSubscription(&gatewaydomain.Subscription{ID: "sub_9", CustomerID: "cst_1", Status: gatewaydomain.SubscriptionActive})
	require.NoError(t, f.repo.Save(context.Background(), &subscriptiondomain.Subscription{
		ID:                   snowflake.ID(5),
		TransactionID:        snowflake.ID(100),
		CustomerID:           "cst_1",
		Frequency:            "1 month",
		Value:                decimal.NewFromInt(10),
		Currency:             "EUR",
		VendorSubscriptionID: "sub_9",
		Status:               gatewaydomain.SubscriptionCanceled,
	}))

	ok, err := f.svc.Cancel(context.Background(), "5", "cst_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, f.gateway.CallCount("cancel_subscription"))
}

func TestCancelUnknownSubscription(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Cancel(context.Background(), "sub_missing", "")
	assert.True(t, errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound))
}

func TestSyncStatus(t *testing.T) {
	f := newFixture(t)
	sub := &subscriptiondomain.Subscription{
		ID:                   snowflake.ID(5),
		TransactionID:        snowflake.ID(100),
		CustomerID:           "cst_1",
		Frequency:            "1 month",
		Value:                decimal.NewFromInt(10),
		Currency:             "EUR",
		VendorSubscriptionID: "sub_9",
		Status:               gatewaydomain.SubscriptionActive,
	}
	require.NoError(t, f.repo.Save(context.Background(), sub))

	require.NoError(t, f.svc.SyncStatus(context.Background(), sub, &gatewaydomain.Subscription{ID: "sub_9", Status: gatewaydomain.SubscriptionCanceled}))

	stored, err := f.repo.FindByID(context.Background(), snowflake.ID(5))
	require.NoError(t, err)
	assert.Equal(t, gatewaydomain.SubscriptionCanceled, stored.Status)
}
