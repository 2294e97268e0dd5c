package metricspush

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	subscriptiondomain "github.com/smallbiznis/kudos/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
	"gorm.io/gorm"
)

// DonationStats holds point-in-time gauges refreshed from the database
// before every push.
type DonationStats struct {
	db *gorm.DB

	transactions  *prometheus.GaugeVec
	raised        *prometheus.GaugeVec
	subscriptions *prometheus.GaugeVec
	campaigns     prometheus.Gauge
}

func NewDonationStats(db *gorm.DB, registerer prometheus.Registerer) *DonationStats {
	s := &DonationStats{
		db: db,
		transactions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kudos_transactions",
			Help: "Stored transactions by status and currency.",
		}, []string{"status", "currency"}),
		raised: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kudos_raised_amount",
			Help: "Sum of paid transaction values by currency.",
		}, []string{"currency"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kudos_subscriptions",
			Help: "Stored subscriptions by status.",
		}, []string{"status"}),
		campaigns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kudos_campaigns",
			Help: "Number of campaigns.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(s.transactions, s.raised, s.subscriptions, s.campaigns)
	}
	return s
}

type transactionRow struct {
	Status   string
	Currency string
	Count    int64
	Total    float64
}

type subscriptionRow struct {
	Status string
	Count  int64
}

// Refresh resets every gauge and reloads it from the current table contents.
func (s *DonationStats) Refresh(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	db := s.db.WithContext(ctx)

	var txRows []transactionRow
	if err := db.Model(&transactiondomain.Transaction{}).
		Select("status, currency, COUNT(*) AS count, COALESCE(SUM(value), 0) AS total").
		Group("status, currency").
		Scan(&txRows).Error; err != nil {
		return err
	}

	var subRows []subscriptionRow
	if err := db.Model(&subscriptiondomain.Subscription{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&subRows).Error; err != nil {
		return err
	}

	var campaignCount int64
	if err := db.Model(&campaigndomain.Campaign{}).Count(&campaignCount).Error; err != nil {
		return err
	}

	s.transactions.Reset()
	s.raised.Reset()
	for _, row := range txRows {
		currency := labelOrUnknown(row.Currency)
		s.transactions.WithLabelValues(labelOrUnknown(row.Status), currency).Set(float64(row.Count))
		if row.Status == "paid" {
			s.raised.WithLabelValues(currency).Add(row.Total)
		}
	}
	s.subscriptions.Reset()
	for _, row := range subRows {
		s.subscriptions.WithLabelValues(labelOrUnknown(row.Status)).Set(float64(row.Count))
	}
	s.campaigns.Set(float64(campaignCount))
	return nil
}

func labelOrUnknown(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
