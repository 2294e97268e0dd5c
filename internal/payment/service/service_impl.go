package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/kudos/internal/audit/domain"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	"github.com/smallbiznis/kudos/internal/clock"
	"github.com/smallbiznis/kudos/internal/config"
	donordomain "github.com/smallbiznis/kudos/internal/donor/domain"
	"github.com/smallbiznis/kudos/internal/events"
	gatewaydomain "github.com/smallbiznis/kudos/internal/gateway/domain"
	notificationdomain "github.com/smallbiznis/kudos/internal/notification/domain"
	obscontext "github.com/smallbiznis/kudos/internal/observability/context"
	"github.com/smallbiznis/kudos/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kudos/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/kudos/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/kudos/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock `optional:"true"`
	Gateway       gatewaydomain.Client
	Transactions  transactiondomain.Repository
	Donors        donordomain.Repository
	Campaigns     campaigndomain.Repository
	Subscriptions subscriptiondomain.Repository
	Scheduler     subscriptiondomain.Scheduler
	Dispatcher    notificationdomain.Dispatcher
	Bus           *events.Bus                  `optional:"true"`
	AuditSvc      auditdomain.Service          `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics          `optional:"true"`
	Donation      *config.DonationConfigHolder `optional:"true"`
	Config        config.Config                `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	gateway       gatewaydomain.Client
	transactions  transactiondomain.Repository
	donors        donordomain.Repository
	campaigns     campaigndomain.Repository
	subscriptions subscriptiondomain.Repository
	scheduler     subscriptiondomain.Scheduler
	dispatcher    notificationdomain.Dispatcher
	bus           *events.Bus
	auditSvc      auditdomain.Service
	metrics       *obsmetrics.Metrics
	donation      *config.DonationConfigHolder
	cfg           config.Config
}

func NewService(p Params) paymentdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         c,
		gateway:       p.Gateway,
		transactions:  p.Transactions,
		donors:        p.Donors,
		campaigns:     p.Campaigns,
		subscriptions: p.Subscriptions,
		scheduler:     p.Scheduler,
		dispatcher:    p.Dispatcher,
		bus:           p.Bus,
		auditSvc:      p.AuditSvc,
		metrics:       p.ObsMetrics,
		donation:      p.Donation,
		cfg:           p.Config,
	}
}

// NewOrderID returns a fresh local order reference.
func NewOrderID() string {
	return transactiondomain.OrderIDPrefix + strings.ToLower(ulid.Make().String())
}

// HandleWebhook reconciles the local transaction with the provider's current
// view of paymentID. Webhooks carry no state; the provider is always re-read.
func (s *Service) HandleWebhook(ctx context.Context, paymentID string) (paymentdomain.WebhookResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		s.metrics.RecordWebhook(ctx, paymentdomain.OutcomeInvalidRequest, "")
		return paymentdomain.WebhookResult{Outcome: paymentdomain.OutcomeInvalidRequest}, paymentdomain.ErrInvalidRequest
	}

	ctx, _ = obscontext.EnsureCorrelationID(ctx)
	ctx, span := otel.Tracer("kudos/payment").Start(ctx, "payment.reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	log := logger.WithContext(ctx, s.log).With(zap.String("payment_id", paymentID))
	result, err := s.reconcile(ctx, log, paymentID)
	result.PaymentID = paymentID

	span.SetAttributes(attribute.String("reconcile.outcome", result.Outcome))
	if err != nil {
		span.SetStatus(codes.Error, result.Outcome)
	}
	s.metrics.RecordWebhook(ctx, result.Outcome, result.Status)
	return result, err
}

func (s *Service) reconcile(ctx context.Context, log *zap.Logger, paymentID string) (paymentdomain.WebhookResult, error) {
	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrNotFound) {
			log.Info("payment unknown to provider")
			return paymentdomain.WebhookResult{Outcome: paymentdomain.OutcomeNotFound}, nil
		}
		log.Error("failed to fetch payment", zap.Error(err))
		return paymentdomain.WebhookResult{Outcome: paymentdomain.OutcomeGatewayError}, err
	}

	orderID := payment.Metadata.OrderID()
	orphan := orderID == ""
	if orphan {
		orderID = NewOrderID()
	}

	tx, err := s.transactions.FindByOrderOrPayment(ctx, orderID, payment.ID)
	if err != nil {
		log.Error("failed to look up transaction", zap.String("order_id", orderID), zap.Error(err))
		return paymentdomain.WebhookResult{Outcome: paymentdomain.OutcomePersistenceError, Status: payment.Status},
			&paymentdomain.PersistenceError{Record: "transaction", Fields: map[string]any{"order_id": orderID}, Err: err}
	}

	created := false
	if tx == nil {
		if orphan {
			if s.donationConfig().RejectOrphans {
				log.Warn("payment without order id rejected")
				return paymentdomain.WebhookResult{Outcome: paymentdomain.OutcomeOrphanRejected, Status: payment.Status}, paymentdomain.ErrOrphanRejected
			}
			log.Warn("payment without order id, using fallback", zap.String("order_id", orderID))
		}
		now := s.clock.Now()
		tx = &transactiondomain.Transaction{
			ID:        s.genID.Generate(),
			OrderID:   orderID,
			Status:    gatewaydomain.StatusOpen,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created = true
	}
	log = log.With(zap.String("order_id", tx.OrderID), zap.String("transaction_id", tx.ID.String()))

	var refund *transactiondomain.Refund
	refundChanged := false
	if payment.HasRefunds() {
		refunded := payment.AmountRefunded()
		r := transactiondomain.Refund{
			Refunded:  refunded.Value,
			Remaining: payment.AmountRemaining().Value,
			Currency:  refunded.Currency,
		}
		previousRefund, _ := tx.Refund()
		refundChanged = !previousRefund.Same(r)
		if err := tx.SetRefund(r); err != nil {
			log.Error("failed to encode refund", zap.Error(err))
		}
		refund = &r
	}

	if !created && refund == nil && tx.Status == payment.Status {
		log.Debug("payment status unchanged", zap.String("status", payment.Status))
		return paymentdomain.WebhookResult{
			Outcome:       paymentdomain.OutcomeDuplicate,
			OrderID:       tx.OrderID,
			TransactionID: tx.ID,
			Status:        tx.Status,
		}, nil
	}

	previous := tx.Status
	s.apply(tx, payment)

	if err := s.transactions.Save(ctx, tx); err != nil {
		return s.persistenceFailure(ctx, log, tx, payment, err)
	}

	result := paymentdomain.WebhookResult{
		Outcome:       paymentdomain.OutcomeUpdated,
		OrderID:       tx.OrderID,
		TransactionID: tx.ID,
		Status:        tx.Status,
	}
	if created {
		result.Outcome = paymentdomain.OutcomeCreated
	}
	log.Info("transaction reconciled",
		zap.String("from", previous),
		zap.String("to", tx.Status),
		zap.String("outcome", result.Outcome),
	)
	s.bus.Publish(ctx, events.TransactionUpdated{Transaction: tx, PreviousStatus: previous, PaymentID: payment.ID})

	if refund != nil {
		result.Outcome = paymentdomain.OutcomeRefunded
	}
	if refundChanged {
		log.Info("refund recorded",
			zap.String("refunded", refund.Refunded.StringFixed(2)),
			zap.String("remaining", refund.Remaining.StringFixed(2)),
		)
		s.bus.Publish(ctx, events.TransactionRefunded{Transaction: tx, Refund: *refund, PaymentID: payment.ID})
	}

	if payment.HasSequenceTypeRecurring() {
		s.syncSubscription(ctx, log, tx, payment)
	}

	if payment.IsPaid() && !payment.HasRefunds() && !payment.HasChargebacks() {
		s.onPaid(ctx, log, tx, payment)
	}

	return result, nil
}

// apply copies the provider's view onto tx. Campaign and donor references
// are only taken from metadata when the transaction has none yet.
func (s *Service) apply(tx *transactiondomain.Transaction, payment *gatewaydomain.Payment) {
	tx.Status = payment.Status
	tx.VendorPaymentID = payment.ID
	if payment.CustomerID != "" {
		tx.CustomerID = payment.CustomerID
	}
	tx.Value = payment.Amount.Value
	tx.Currency = payment.Amount.Currency
	if payment.SequenceType != "" {
		tx.SequenceType = payment.SequenceType
	}
	if payment.Method != "" {
		tx.Method = payment.Method
	}
	if payment.Mode != "" {
		tx.Mode = payment.Mode
	}
	if payment.SubscriptionID != "" {
		subID := payment.SubscriptionID
		tx.VendorSubscriptionID = &subID
	}
	if tx.CampaignID == nil {
		tx.CampaignID = parseID(payment.Metadata.CampaignID())
	}
	if tx.DonorID == nil {
		tx.DonorID = parseID(payment.Metadata.DonorID())
	}
	tx.UpdatedAt = s.clock.Now()
}

func (s *Service) persistenceFailure(ctx context.Context, log *zap.Logger, tx *transactiondomain.Transaction, payment *gatewaydomain.Payment, err error) (paymentdomain.WebhookResult, error) {
	fields := tx.Fields()
	log.Error("failed to store transaction",
		zap.Any("fields", fields),
		zap.Error(err),
	)

	if s.auditSvc != nil {
		targetID := tx.OrderID
		metadata := map[string]any{
			"payment_id": payment.ID,
			"fields":     fields,
			"error":      err.Error(),
		}
		if auditErr := s.auditSvc.AuditLog(ctx, auditdomain.ActorSystem, nil, auditdomain.ActionReconcileFailed, "transaction", &targetID, metadata); auditErr != nil {
			log.Warn("failed to write audit log", zap.Error(auditErr))
		}
	}
	s.bus.Publish(ctx, events.ReconcileFailed{PaymentID: payment.ID, OrderID: tx.OrderID, Fields: fields, Err: err})

	return paymentdomain.WebhookResult{
			Outcome:       paymentdomain.OutcomePersistenceError,
			OrderID:       tx.OrderID,
			TransactionID: tx.ID,
			Status:        payment.Status,
		}, &paymentdomain.PersistenceError{
			Record: "transaction",
			Fields: fields,
			Err:    err,
		}
}

// syncSubscription backfills the campaign of a recurring payment from its
// subscription and mirrors the subscription status locally. Failures are logged only.
func (s *Service) syncSubscription(ctx context.Context, log *zap.Logger, tx *transactiondomain.Transaction, payment *gatewaydomain.Payment) {
	if payment.SubscriptionID == "" || payment.CustomerID == "" {
		log.Warn("recurring payment without subscription reference")
		return
	}

	remote, err := s.gateway.GetSubscription(ctx, payment.CustomerID, payment.SubscriptionID)
	if err != nil {
		log.Warn("failed to fetch subscription",
			zap.String("vendor_subscription_id", payment.SubscriptionID),
			zap.Error(err),
		)
		return
	}

	if campaignID := parseID(remote.Metadata.CampaignID()); campaignID != nil {
		if tx.CampaignID == nil || *tx.CampaignID != *campaignID {
			tx.CampaignID = campaignID
			tx.UpdatedAt = s.clock.Now()
			if err := s.transactions.Save(ctx, tx); err != nil {
				log.Error("failed to store campaign from subscription",
					zap.String("campaign_id", campaignID.String()),
					zap.Error(err),
				)
			}
		}
	}

	local, err := s.subscriptions.FindByVendorID(ctx, remote.ID)
	if err != nil {
		log.Warn("failed to look up local subscription", zap.Error(err))
		return
	}
	if err := s.scheduler.SyncStatus(ctx, local, remote); err != nil {
		log.Warn("failed to sync subscription status", zap.Error(err))
	}
}

func (s *Service) onPaid(ctx context.Context, log *zap.Logger, tx *transactiondomain.Transaction, payment *gatewaydomain.Payment) {
	s.bus.Publish(ctx, events.TransactionPaid{Transaction: tx, PaymentID: payment.ID})

	cfg := s.donationConfig()
	if cfg.ReceiptsEnabled {
		payload := map[string]string{"order_id": tx.OrderID}
		if err := s.dispatcher.Schedule(ctx, cfg.ReceiptDelay, notificationdomain.EventProcessPaidTransaction, payload); err != nil {
			log.Warn("failed to schedule receipt", zap.Error(err))
		}
	}

	if !payment.HasSequenceTypeFirst() {
		return
	}
	sub, err := s.scheduler.MaybeCreate(ctx, tx, payment.MandateID, payment.Metadata.Interval(), payment.Metadata.Years())
	if err != nil {
		log.Warn("subscription not created",
			zap.String("interval", payment.Metadata.Interval()),
			zap.Error(err),
		)
		return
	}
	if sub != nil && (tx.VendorSubscriptionID == nil || *tx.VendorSubscriptionID != sub.VendorSubscriptionID) {
		vendorID := sub.VendorSubscriptionID
		tx.VendorSubscriptionID = &vendorID
		if err := s.transactions.Save(ctx, tx); err != nil {
			log.Error("failed to link subscription to transaction", zap.Error(err))
		}
	}
}

// CreatePayment validates a donation against its campaign, registers the
// donor and transaction locally and opens a checkout at the provider.
func (s *Service) CreatePayment(ctx context.Context, req paymentdomain.CreatePaymentRequest) (paymentdomain.CreatePaymentResponse, error) {
	log := logger.WithContext(ctx, s.log)

	campaign, err := s.findCampaign(ctx, req.CampaignID)
	if err != nil {
		return paymentdomain.CreatePaymentResponse{}, err
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return paymentdomain.CreatePaymentResponse{}, paymentdomain.ErrInvalidAmount
	}
	amount = amount.Round(2)
	if amount.LessThan(campaign.MinimumDonation) {
		return paymentdomain.CreatePaymentResponse{}, paymentdomain.ErrAmountTooLow
	}
	if campaign.MaximumDonation.IsPositive() && amount.GreaterThan(campaign.MaximumDonation) {
		return paymentdomain.CreatePaymentResponse{}, paymentdomain.ErrAmountTooHigh
	}

	email := donordomain.NormalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return paymentdomain.CreatePaymentResponse{}, paymentdomain.ErrInvalidEmail
	}

	interval := strings.TrimSpace(req.Interval)
	recurring := interval != ""
	if recurring {
		if err := validateRecurring(campaign, interval, req.Years); err != nil {
			return paymentdomain.CreatePaymentResponse{}, err
		}
	}

	donor, err := s.upsertDonor(ctx, req, email)
	if err != nil {
		return paymentdomain.CreatePaymentResponse{}, err
	}

	now := s.clock.Now()
	sequence := gatewaydomain.SequenceOneOff
	if recurring {
		sequence = gatewaydomain.SequenceFirst
	}
	tx := &transactiondomain.Transaction{
		ID:           s.genID.Generate(),
		OrderID:      NewOrderID(),
		DonorID:      &donor.ID,
		CampaignID:   &campaign.ID,
		CustomerID:   donor.VendorCustomerID,
		Value:        amount,
		Currency:     campaign.Currency,
		Status:       gatewaydomain.StatusOpen,
		Mode:         s.gateway.Mode(),
		SequenceType: sequence,
		Message:      strings.TrimSpace(req.Message),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.transactions.Save(ctx, tx); err != nil {
		log.Error("failed to store transaction", zap.Any("fields", tx.Fields()), zap.Error(err))
		return paymentdomain.CreatePaymentResponse{}, &paymentdomain.PersistenceError{Record: "transaction", Fields: tx.Fields(), Err: err}
	}
	log = log.With(zap.String("order_id", tx.OrderID), zap.String("transaction_id", tx.ID.String()))

	metadata := gatewaydomain.Metadata{
		"order_id":    tx.OrderID,
		"campaign_id": campaign.ID.String(),
		"donor_id":    donor.ID.String(),
	}
	if recurring {
		metadata["interval"] = interval
		metadata["years"] = fmt.Sprintf("%d", req.Years)
	}
	paymentReq := gatewaydomain.CreatePaymentRequest{
		Amount:      gatewaydomain.Amount{Value: amount, Currency: campaign.Currency},
		Description: s.description(campaign, tx),
		RedirectURL: s.redirectURL(req.RedirectURL),
		WebhookURL:  s.webhookURL(),
		CustomerID:  donor.VendorCustomerID,
		Metadata:    metadata,
	}
	if recurring {
		paymentReq.SequenceType = gatewaydomain.SequenceFirst
	}

	payment, err := s.gateway.CreatePayment(ctx, paymentReq)
	if err != nil {
		log.Error("failed to create payment at provider", zap.Error(err))
		return paymentdomain.CreatePaymentResponse{}, err
	}

	tx.VendorPaymentID = payment.ID
	tx.UpdatedAt = s.clock.Now()
	if err := s.transactions.Save(ctx, tx); err != nil {
		log.Error("provider payment created but not linked",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		return paymentdomain.CreatePaymentResponse{}, &paymentdomain.PersistenceError{Record: "transaction", Fields: tx.Fields(), Err: err}
	}

	log.Info("payment created",
		zap.String("payment_id", payment.ID),
		zap.String("sequence_type", sequence),
	)
	return paymentdomain.CreatePaymentResponse{
		OrderID:       tx.OrderID,
		TransactionID: tx.ID,
		PaymentID:     payment.ID,
		CheckoutURL:   payment.CheckoutURL,
	}, nil
}

func validateRecurring(campaign *campaigndomain.Campaign, interval string, years int) error {
	if !campaign.AllowRecurring {
		return paymentdomain.ErrRecurringNotAllowed
	}
	if !campaign.AllowsFrequency(interval) {
		return paymentdomain.ErrInvalidFrequency
	}
	if years < 0 || !campaign.AllowsDuration(years) {
		return paymentdomain.ErrInvalidDuration
	}
	parsed, err := subscriptiondomain.ParseInterval(interval)
	if err != nil {
		return paymentdomain.ErrInvalidFrequency
	}
	if _, err := parsed.Times(years); err != nil {
		return paymentdomain.ErrInvalidDuration
	}
	return nil
}

func (s *Service) findCampaign(ctx context.Context, ref string) (*campaigndomain.Campaign, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, paymentdomain.ErrInvalidCampaign
	}
	var (
		campaign *campaigndomain.Campaign
		err      error
	)
	if id, parseErr := snowflake.ParseString(ref); parseErr == nil {
		campaign, err = s.campaigns.FindByID(ctx, id)
	} else {
		campaign, err = s.campaigns.FindBySlug(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, paymentdomain.ErrInvalidCampaign
	}
	return campaign, nil
}

// upsertDonor refreshes the donor's details and makes sure a provider
// customer exists for the gateway's current mode.
func (s *Service) upsertDonor(ctx context.Context, req paymentdomain.CreatePaymentRequest, email string) (*donordomain.Donor, error) {
	donor, err := s.donors.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if donor == nil {
		donor = &donordomain.Donor{ID: s.genID.Generate(), CreatedAt: now}
	}
	donor.Apply(donordomain.Details{
		Email:        email,
		Name:         req.Name,
		BusinessName: req.BusinessName,
		Street:       req.Street,
		Postcode:     req.Postcode,
		City:         req.City,
		Country:      req.Country,
	})

	mode := s.gateway.Mode()
	if donor.VendorCustomerID == "" || donor.Mode != mode {
		customer, err := s.gateway.CreateCustomer(ctx, gatewaydomain.CreateCustomerRequest{
			Name:  donor.Name,
			Email: donor.Email,
		})
		if err != nil {
			s.log.Error("failed to create provider customer", zap.String("donor_id", donor.ID.String()), zap.Error(err))
			return nil, err
		}
		donor.VendorCustomerID = customer.ID
		donor.Mode = mode
	}
	donor.UpdatedAt = now

	if err := s.donors.Save(ctx, donor); err != nil {
		return nil, err
	}
	return donor, nil
}

func (s *Service) donationConfig() config.DonationConfig {
	return s.donation.Get()
}

func (s *Service) description(campaign *campaigndomain.Campaign, tx *transactiondomain.Transaction) string {
	base := strings.TrimSpace(s.donationConfig().PaymentDescription)
	if base == "" {
		base = "Donation"
	}
	return fmt.Sprintf("%s %s - %s", base, campaign.Name, tx.OrderID)
}

func (s *Service) redirectURL(requested string) string {
	if u := strings.TrimSpace(requested); u != "" {
		return u
	}
	if u := strings.TrimSpace(s.donationConfig().ReturnURL); u != "" {
		return u
	}
	return strings.TrimRight(s.cfg.PublicURL, "/")
}

func (s *Service) webhookURL() string {
	if strings.TrimSpace(s.cfg.PublicURL) == "" {
		return ""
	}
	return s.cfg.WebhookURL()
}

func parseID(raw string) *snowflake.ID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}
