package metricspush

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	subscriptiondomain "github.com/smallbiznis/kudos/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
	"github.com/smallbiznis/kudos/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPusher struct {
	pushes atomic.Int32
}

func (p *recordingPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if _, err := gatherer.Gather(); err != nil {
		return err
	}
	p.pushes.Add(1)
	return nil
}

func seedStats(t *testing.T) *DonationStats {
	t.Helper()
	db := dbtest.Open(t, &transactiondomain.Transaction{}, &subscriptiondomain.Subscription{}, &campaigndomain.Campaign{})
	now := time.Now().UTC()

	txs := []transactiondomain.Transaction{
		{ID: 1, OrderID: "kdo_1", Value: decimal.RequireFromString("10.00"), Currency: "EUR", Status: "paid", CreatedAt: now, UpdatedAt: now},
		{ID: 2, OrderID: "kdo_2", Value: decimal.RequireFromString("15.50"), Currency: "EUR", Status: "paid", CreatedAt: now, UpdatedAt: now},
		{ID: 3, OrderID: "kdo_3", Value: decimal.RequireFromString("5.00"), Currency: "EUR", Status: "open", CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, db.Create(&txs).Error)
	require.NoError(t, db.Create(&subscriptiondomain.Subscription{
		ID: 10, TransactionID: 1, CustomerID: "cst_1", Frequency: "1 month", Value: decimal.RequireFromString("10.00"),
		Currency: "EUR", Status: "active", CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, db.Create(&campaigndomain.Campaign{
		ID: 20, Name: "General", Slug: "general", Currency: "EUR", CreatedAt: now, UpdatedAt: now,
	}).Error)

	return NewDonationStats(db, prometheus.NewRegistry())
}

func TestDonationStatsRefresh(t *testing.T) {
	stats := seedStats(t)
	require.NoError(t, stats.Refresh(context.Background()))

	assert.Equal(t, 2.0, testutil.ToFloat64(stats.transactions.WithLabelValues("paid", "EUR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.transactions.WithLabelValues("open", "EUR")))
	assert.InDelta(t, 25.5, testutil.ToFloat64(stats.raised.WithLabelValues("EUR")), 0.001)
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.subscriptions.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.campaigns))
}

func TestWorkerPushOnceRefreshesAndPushes(t *testing.T) {
	stats := seedStats(t)
	registry := prometheus.NewRegistry()
	pusher := &recordingPusher{}

	w := &Worker{pusher: pusher, stats: stats, gatherer: registry, log: zap.NewNop()}
	w.PushOnce(context.Background())

	assert.Equal(t, int32(1), pusher.pushes.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.campaigns))
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	stats := seedStats(t)
	pusher := &recordingPusher{}
	w := &Worker{pusher: pusher, stats: stats, gatherer: prometheus.NewRegistry(), interval: time.Hour, log: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return pusher.pushes.Load() >= 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
