package events

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/kudos/internal/audit/domain"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	obsmetrics "github.com/smallbiznis/kudos/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ObserversModule = fx.Module("events.observers",
	fx.Invoke(RegisterObservers),
)

type ObserverParams struct {
	fx.In

	Bus        *Bus
	Log        *zap.Logger
	AuditSvc   auditdomain.Service    `optional:"true"`
	Campaigns  campaigndomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

// RegisterObservers wires audit, metrics and campaign-total observers onto the bus.
func RegisterObservers(p ObserverParams) {
	log := p.Log.Named("events.observer")

	if p.AuditSvc != nil {
		p.Bus.Subscribe(auditObserver(p.AuditSvc, log), NameTransactionRefunded, NameSubscriptionCreated)
	}
	if p.ObsMetrics != nil {
		p.Bus.Subscribe(func(ctx context.Context, evt Event) {
			if created, ok := evt.(SubscriptionCreated); ok && created.Subscription != nil {
				p.ObsMetrics.RecordSubscriptionCreated(ctx, created.Subscription.Frequency)
			}
		}, NameSubscriptionCreated)
	}
	if p.Campaigns != nil {
		p.Bus.Subscribe(campaignTotalObserver(p.Campaigns, log), NameTransactionPaid, NameTransactionRefunded)
	}
}

func auditObserver(svc auditdomain.Service, log *zap.Logger) Handler {
	return func(ctx context.Context, evt Event) {
		var (
			action     string
			targetType string
			targetID   string
			metadata   map[string]any
		)
		switch e := evt.(type) {
		case TransactionRefunded:
			action = auditdomain.ActionTransactionRefunded
			targetType = "transaction"
			targetID = e.Transaction.OrderID
			metadata = map[string]any{
				"payment_id": e.PaymentID,
				"refunded":   e.Refund.Refunded.StringFixed(2),
				"remaining":  e.Refund.Remaining.StringFixed(2),
				"currency":   e.Refund.Currency,
			}
		case SubscriptionCreated:
			action = auditdomain.ActionSubscriptionCreated
			targetType = "subscription"
			targetID = e.Subscription.VendorSubscriptionID
			metadata = map[string]any{
				"interval": e.Subscription.Frequency,
				"years":    e.Subscription.Years,
				"value":    e.Subscription.Value.StringFixed(2),
			}
			if e.Transaction != nil {
				metadata["order_id"] = e.Transaction.OrderID
			}
		default:
			return
		}
		if err := svc.AuditLog(ctx, auditdomain.ActorSystem, nil, action, targetType, &targetID, metadata); err != nil {
			log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		}
	}
}

func campaignTotalObserver(svc campaigndomain.Service, log *zap.Logger) Handler {
	return func(ctx context.Context, evt Event) {
		var campaignID *snowflake.ID
		switch e := evt.(type) {
		case TransactionPaid:
			campaignID = e.Transaction.CampaignID
		case TransactionRefunded:
			campaignID = e.Transaction.CampaignID
		}
		if campaignID == nil {
			return
		}
		total, err := svc.Total(ctx, *campaignID)
		if err != nil {
			log.Warn("failed to refresh campaign total", zap.String("campaign_id", campaignID.String()), zap.Error(err))
			return
		}
		log.Info("campaign total updated",
			zap.String("campaign_id", total.CampaignID.String()),
			zap.String("total", total.Total.StringFixed(2)),
			zap.String("progress", total.Progress.StringFixed(2)),
			zap.Int("donations", total.Donations),
		)
	}
}
