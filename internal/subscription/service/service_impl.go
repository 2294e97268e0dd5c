package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kudos/internal/clock"
	"github.com/smallbiznis/kudos/internal/config"
	donordomain "github.com/smallbiznis/kudos/internal/donor/domain"
	"github.com/smallbiznis/kudos/internal/events"
	gatewaydomain "github.com/smallbiznis/kudos/internal/gateway/domain"
	subscriptiondomain "github.com/smallbiznis/kudos/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
	"github.com/smallbiznis/kudos/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Gateway  gatewaydomain.Client
	Repo     subscriptiondomain.Repository
	Donors   donordomain.Repository
	Bus      *events.Bus                  `optional:"true"`
	Donation *config.DonationConfigHolder `optional:"true"`
	Config   config.Config                `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	gateway  gatewaydomain.Client
	repo     subscriptiondomain.Repository
	donors   donordomain.Repository
	bus      *events.Bus
	donation *config.DonationConfigHolder
	cfg      config.Config
}

func NewService(p Params) subscriptiondomain.Scheduler {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		clock:    c,
		gateway:  p.Gateway,
		repo:     p.Repo,
		donors:   p.Donors,
		bus:      p.Bus,
		donation: p.Donation,
		cfg:      p.Config,
	}
}

// MaybeCreate creates the provider subscription for a paid first payment and
// stores it locally. It returns the existing subscription when one was already
// created for tx, so repeated calls never reach the provider twice.
func (s *Service) MaybeCreate(ctx context.Context, tx *transactiondomain.Transaction, mandateID, interval string, years int) (*subscriptiondomain.Subscription, error) {
	if tx == nil {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}
	log := s.log.With(
		zap.String("order_id", tx.OrderID),
		zap.String("transaction_id", tx.ID.String()),
	)

	existing, err := s.repo.FindByTransactionID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Debug("subscription already exists", zap.String("vendor_subscription_id", existing.VendorSubscriptionID))
		return existing, nil
	}

	parsed, err := subscriptiondomain.ParseInterval(interval)
	if err != nil {
		log.Error("cannot create subscription with invalid interval", zap.String("interval", interval))
		return nil, err
	}
	times, err := parsed.Times(years)
	if err != nil {
		log.Error("interval cannot be bounded by years",
			zap.String("interval", interval),
			zap.Int("years", years),
		)
		return nil, err
	}

	customerID, err := s.resolveCustomerID(ctx, tx)
	if err != nil {
		log.Error("cannot resolve provider customer", zap.Error(err))
		return nil, err
	}

	customer, err := s.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		log.Error("failed to fetch customer", zap.String("customer_id", customerID), zap.Error(err))
		return nil, err
	}

	mandate, err := s.gateway.GetMandate(ctx, customer.ID, mandateID)
	if err != nil && !errors.Is(err, gatewaydomain.ErrNotFound) {
		log.Error("failed to fetch mandate",
			zap.String("customer_id", customer.ID),
			zap.String("mandate_id", mandateID),
			zap.Error(err),
		)
		return nil, err
	}
	if !mandate.IsUsable() {
		status := "missing"
		if mandate != nil {
			status = mandate.Status
		}
		log.Error("mandate not valid, subscription not created",
			zap.String("customer_id", customer.ID),
			zap.String("mandate_id", mandateID),
			zap.String("mandate_status", status),
		)
		return nil, subscriptiondomain.ErrMandateInvalid
	}

	req := gatewaydomain.CreateSubscriptionRequest{
		Amount:      gatewaydomain.Amount{Value: tx.Value, Currency: tx.Currency},
		Interval:    parsed.Provider(),
		Description: s.description(tx, interval),
		WebhookURL:  s.webhookURL(),
		MandateID:   mandate.ID,
		Times:       times,
		Metadata:    s.metadata(tx),
	}
	if tx.Mode != gatewaydomain.ModeTest {
		req.StartDate = parsed.AddTo(s.clock.Now()).Format(time.DateOnly)
	}

	remote, err := s.gateway.CreateSubscription(ctx, customer.ID, req)
	if err != nil {
		log.Error("failed to create subscription at provider",
			zap.String("customer_id", customer.ID),
			zap.Error(err),
		)
		return nil, err
	}

	now := s.clock.Now()
	sub := &subscriptiondomain.Subscription{
		ID:                   s.genID.Generate(),
		TransactionID:        tx.ID,
		CustomerID:           customer.ID,
		Frequency:            interval,
		Years:                years,
		Value:                tx.Value,
		Currency:             tx.Currency,
		VendorSubscriptionID: remote.ID,
		Status:               remote.Status,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.dropDuplicate(ctx, log, tx, customer.ID, remote.ID)
		}
		log.Error("provider subscription created but not stored",
			zap.String("vendor_subscription_id", remote.ID),
			zap.String("customer_id", customer.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("store subscription %s: %w", remote.ID, err)
	}

	log.Info("subscription created",
		zap.String("vendor_subscription_id", remote.ID),
		zap.String("interval", interval),
		zap.Intp("times", times),
	)
	s.bus.Publish(ctx, events.SubscriptionCreated{Subscription: sub, Transaction: tx})
	return sub, nil
}

// Cancel asks the provider to stop a subscription. Local status is left alone;
// the provider's next webhook carries the new status. With a customer id the
// provider is asked directly; without one the local record supplies it and an
// inactive subscription short-circuits.
func (s *Service) Cancel(ctx context.Context, subscriptionID, customerID string) (bool, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID != "" {
		vendorID, err := s.vendorID(ctx, subscriptionID)
		if err != nil {
			return false, err
		}
		return s.cancelRemote(ctx, customerID, vendorID)
	}

	sub, err := s.findByAnyID(ctx, subscriptionID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, subscriptiondomain.ErrSubscriptionNotFound
	}

	if !sub.IsActive() {
		s.log.Debug("subscription not active, nothing to cancel",
			zap.String("vendor_subscription_id", sub.VendorSubscriptionID),
			zap.String("status", sub.Status),
		)
		return false, nil
	}
	return s.cancelRemote(ctx, sub.CustomerID, sub.VendorSubscriptionID)
}

func (s *Service) cancelRemote(ctx context.Context, customerID, vendorID string) (bool, error) {
	canceled, err := s.gateway.CancelSubscription(ctx, customerID, vendorID)
	if err != nil {
		s.log.Error("failed to cancel subscription",
			zap.String("vendor_subscription_id", vendorID),
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		return false, err
	}
	return canceled, nil
}

// vendorID maps a local snowflake id to its provider id. Provider ids pass
// through without a lookup.
func (s *Service) vendorID(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "sub_") {
		return id, nil
	}
	sub, err := s.findByAnyID(ctx, id)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub.VendorSubscriptionID, nil
}

// dropDuplicate handles a concurrent delivery that stored the subscription
// for tx first. The provider subscription created by this call is canceled
// so only the stored one keeps charging.
func (s *Service) dropDuplicate(ctx context.Context, log *zap.Logger, tx *transactiondomain.Transaction, customerID, vendorID string) (*subscriptiondomain.Subscription, error) {
	log = log.With(zap.String("vendor_subscription_id", vendorID))
	log.Warn("subscription already stored for transaction, canceling duplicate at provider")
	if _, err := s.gateway.CancelSubscription(ctx, customerID, vendorID); err != nil {
		log.Error("failed to cancel duplicate subscription", zap.Error(err))
		return nil, fmt.Errorf("cancel duplicate subscription %s: %w", vendorID, err)
	}
	existing, err := s.repo.FindByTransactionID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return existing, nil
}

// SyncStatus copies the provider's subscription status onto the local record.
func (s *Service) SyncStatus(ctx context.Context, sub *subscriptiondomain.Subscription, remote *gatewaydomain.Subscription) error {
	if sub == nil || remote == nil {
		return nil
	}
	status := strings.TrimSpace(remote.Status)
	if status == "" || status == sub.Status {
		return nil
	}

	previous := sub.Status
	sub.Status = status
	sub.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, sub); err != nil {
		return err
	}
	s.log.Info("subscription status synced",
		zap.String("vendor_subscription_id", sub.VendorSubscriptionID),
		zap.String("from", previous),
		zap.String("to", status),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	sub, err := s.findByAnyID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) List(ctx context.Context, filter subscriptiondomain.ListFilter) ([]*subscriptiondomain.Subscription, error) {
	return s.repo.List(ctx, filter)
}

// findByAnyID accepts a local snowflake id or a provider subscription id.
func (s *Service) findByAnyID(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}
	if strings.HasPrefix(id, "sub_") {
		return s.repo.FindByVendorID(ctx, id)
	}
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}
	return s.repo.FindByID(ctx, parsed)
}

func (s *Service) resolveCustomerID(ctx context.Context, tx *transactiondomain.Transaction) (string, error) {
	if tx.DonorID != nil {
		donor, err := s.donors.FindByID(ctx, *tx.DonorID)
		if err != nil {
			return "", err
		}
		if donor != nil && donor.VendorCustomerID != "" {
			return donor.VendorCustomerID, nil
		}
	}
	if tx.CustomerID != "" {
		return tx.CustomerID, nil
	}
	return "", subscriptiondomain.ErrMissingCustomer
}

func (s *Service) description(tx *transactiondomain.Transaction, interval string) string {
	base := "Donation"
	if s.donation != nil {
		if d := strings.TrimSpace(s.donation.Get().PaymentDescription); d != "" {
			base = d
		}
	}
	return fmt.Sprintf("%s (%s) - %s", base, interval, tx.OrderID)
}

func (s *Service) webhookURL() string {
	if strings.TrimSpace(s.cfg.PublicURL) == "" {
		return ""
	}
	return s.cfg.WebhookURL()
}

func (s *Service) metadata(tx *transactiondomain.Transaction) gatewaydomain.Metadata {
	md := gatewaydomain.Metadata{"order_id": tx.OrderID}
	if tx.CampaignID != nil {
		md["campaign_id"] = tx.CampaignID.String()
	}
	if tx.DonorID != nil {
		md["donor_id"] = tx.DonorID.String()
	}
	return md
}
