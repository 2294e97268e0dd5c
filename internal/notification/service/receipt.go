package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"

	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	"github.com/smallbiznis/kudos/internal/clock"
	"github.com/smallbiznis/kudos/internal/config"
	donordomain "github.com/smallbiznis/kudos/internal/donor/domain"
	gatewaydomain "github.com/smallbiznis/kudos/internal/gateway/domain"
	"github.com/smallbiznis/kudos/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/kudos/internal/observability/metrics"
	"github.com/smallbiznis/kudos/internal/providers/email"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var receiptTemplate = template.Must(template.ParseFS(templateFS, "templates/receipt.html"))

// Receipt delivery results.
const (
	ReceiptSent    = "sent"
	ReceiptSkipped = "skipped"
	ReceiptFailed  = "failed"
)

type ReceiptParams struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock `optional:"true"`
	Transactions transactiondomain.Repository
	Donors       donordomain.Repository
	Campaigns    campaigndomain.Repository
	Email        email.Provider
	Donation     *config.DonationConfigHolder `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics          `optional:"true"`
}

// ReceiptSender handles process_paid_transaction jobs.
type ReceiptSender struct {
	log          *zap.Logger
	clock        clock.Clock
	transactions transactiondomain.Repository
	donors       donordomain.Repository
	campaigns    campaigndomain.Repository
	email        email.Provider
	donation     *config.DonationConfigHolder
	metrics      *obsmetrics.Metrics
}

func NewReceiptSender(p ReceiptParams) *ReceiptSender {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &ReceiptSender{
		log:          p.Log.Named("notification.receipt"),
		clock:        c,
		transactions: p.Transactions,
		donors:       p.Donors,
		campaigns:    p.Campaigns,
		email:        p.Email,
		donation:     p.Donation,
		metrics:      p.ObsMetrics,
	}
}

type receiptView struct {
	Subject      string
	DonorName    string
	Amount       string
	Currency     string
	CampaignName string
	OrderID      string
	Date         string
	Method       string
	Message      string
	Recurring    bool
	SenderName   string
}

// Handle sends the receipt for the transaction named by the job payload. The
// transaction is re-read so a refund that landed during the delay suppresses it.
func (r *ReceiptSender) Handle(ctx context.Context, job domain.Job) error {
	orderID := strings.TrimSpace(job.Payload["order_id"])
	if orderID == "" {
		return fmt.Errorf("%w: missing order_id", domain.ErrInvalidJob)
	}
	log := r.log.With(zap.String("order_id", orderID))

	tx, err := r.transactions.FindByOrderID(ctx, orderID)
	if err != nil {
		r.metrics.RecordReceipt(ctx, ReceiptFailed)
		return err
	}
	if tx == nil {
		r.metrics.RecordReceipt(ctx, ReceiptSkipped)
		return fmt.Errorf("%w: unknown order %s", domain.ErrInvalidJob, orderID)
	}
	if tx.Status != gatewaydomain.StatusPaid || len(tx.Refunds) > 0 {
		log.Info("receipt skipped, transaction no longer paid", zap.String("status", tx.Status))
		r.metrics.RecordReceipt(ctx, ReceiptSkipped)
		return nil
	}

	donor, err := r.findDonor(ctx, tx)
	if err != nil {
		r.metrics.RecordReceipt(ctx, ReceiptFailed)
		return err
	}
	if donor == nil || donor.Email == "" {
		log.Warn("receipt skipped, no donor email")
		r.metrics.RecordReceipt(ctx, ReceiptSkipped)
		return nil
	}

	var campaign *campaigndomain.Campaign
	if tx.CampaignID != nil {
		campaign, err = r.campaigns.FindByID(ctx, *tx.CampaignID)
		if err != nil {
			r.metrics.RecordReceipt(ctx, ReceiptFailed)
			return err
		}
	}

	view := r.view(tx, donor, campaign)
	body, err := render(view)
	if err != nil {
		r.metrics.RecordReceipt(ctx, ReceiptFailed)
		return err
	}
	if err := r.email.Send(ctx, []string{donor.Email}, view.Subject, body); err != nil {
		log.Error("failed to send receipt", zap.Error(err))
		r.metrics.RecordReceipt(ctx, ReceiptFailed)
		return err
	}

	log.Info("receipt sent", zap.String("donor_id", donor.ID.String()))
	r.metrics.RecordReceipt(ctx, ReceiptSent)
	return nil
}

func (r *ReceiptSender) findDonor(ctx context.Context, tx *transactiondomain.Transaction) (*donordomain.Donor, error) {
	if tx.DonorID != nil {
		return r.donors.FindByID(ctx, *tx.DonorID)
	}
	if tx.CustomerID != "" {
		return r.donors.FindByCustomerID(ctx, tx.CustomerID)
	}
	return nil, nil
}

func (r *ReceiptSender) view(tx *transactiondomain.Transaction, donor *donordomain.Donor, campaign *campaigndomain.Campaign) receiptView {
	sender := strings.TrimSpace(r.donation.Get().ReceiptSenderName)
	if sender == "" {
		sender = "Kudos"
	}
	v := receiptView{
		Subject:    "Thank you for your donation",
		DonorName:  donor.Name,
		Amount:     tx.Value.StringFixed(2),
		Currency:   tx.Currency,
		OrderID:    tx.OrderID,
		Date:       tx.UpdatedAt.Format("2 January 2006"),
		Method:     tx.Method,
		Message:    tx.Message,
		Recurring:  tx.SequenceType == gatewaydomain.SequenceFirst || tx.SequenceType == gatewaydomain.SequenceRecurring,
		SenderName: sender,
	}
	if tx.UpdatedAt.IsZero() {
		v.Date = r.clock.Now().Format("2 January 2006")
	}
	if donor.BusinessName != "" && v.DonorName == "" {
		v.DonorName = donor.BusinessName
	}
	if campaign != nil {
		v.CampaignName = campaign.Name
		v.Subject = fmt.Sprintf("Thank you for supporting %s", campaign.Name)
	}
	return v
}

// render executes the receipt email template.
func render(v receiptView) (string, error) {
	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return buf.String(), nil
}
