package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	campaignrepo "github.com/smallbiznis/kudos/internal/campaign/repository"
	"github.com/smallbiznis/kudos/internal/config"
	donordomain "github.com/smallbiznis/kudos/internal/donor/domain"
	donorrepo "github.com/smallbiznis/kudos/internal/donor/repository"
	gatewaydomain "github.com/smallbiznis/kudos/internal/gateway/domain"
	"github.com/smallbiznis/kudos/internal/notification/domain"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
	transactionrepo "github.com/smallbiznis/kudos/internal/transaction/repository"
	"github.com/smallbiznis/kudos/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type recordingMailer struct {
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to []string, subject string, htmlBody string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

type receiptFixture struct {
	sender       *ReceiptSender
	mailer       *recordingMailer
	transactions transactiondomain.Repository
	donors       donordomain.Repository
	campaigns    campaigndomain.Repository
}

func newReceiptFixture(t *testing.T) *receiptFixture {
	t.Helper()
	db := dbtest.Open(t, &transactiondomain.Transaction{}, &donordomain.Donor{}, &campaigndomain.Campaign{})
	f := &receiptFixture{
		mailer:       &recordingMailer{},
		transactions: transactionrepo.Provide(db),
		donors:       donorrepo.Provide(db),
		campaigns:    campaignrepo.Provide(db),
	}
	donation := config.DefaultDonationConfig()
	donation.ReceiptSenderName = "Clean Water Foundation"
	f.sender = NewReceiptSender(ReceiptParams{
		Log:          zap.NewNop(),
		Transactions: f.transactions,
		Donors:       f.donors,
		Campaigns:    f.campaigns,
		Email:        f.mailer,
		Donation:     config.NewStaticDonationConfigHolder(donation),
	})
	return f
}

func (f *receiptFixture) seed(t *testing.T, status string) *transactiondomain.Transaction {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	donor := &donordomain.Donor{ID: snowflake.ID(1), Email: "ada@example.com", Name: "Ada", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.donors.Save(ctx, donor))
	campaign := &campaigndomain.Campaign{
		ID: snowflake.ID(2), Name: "Clean Water", Slug: "clean-water", Currency: "EUR",
		MinimumDonation: decimal.Zero, MaximumDonation: decimal.Zero, Goal: decimal.Zero, AdditionalFunds: decimal.Zero,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.campaigns.Create(ctx, campaign))

	tx := &transactiondomain.Transaction{
		ID:           snowflake.ID(3),
		OrderID:      "kdo_receipt",
		DonorID:      &donor.ID,
		CampaignID:   &campaign.ID,
		Value:        decimal.RequireFromString("25.00"),
		Currency:     "EUR",
		Status:       status,
		Method:       "ideal",
		SequenceType: gatewaydomain.SequenceOneOff,
		Message:      "Keep it up",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.transactions.Save(ctx, tx))
	return tx
}

func receiptJob(orderID string) domain.Job {
	return domain.Job{ID: "job-1", Event: domain.EventProcessPaidTransaction, Payload: map[string]string{"order_id": orderID}}
}

func TestReceiptSenderSendsForPaidTransaction(t *testing.T) {
	f := newReceiptFixture(t)
	f.seed(t, gatewaydomain.StatusPaid)

	require.NoError(t, f.sender.Handle(context.Background(), receiptJob("kdo_receipt")))
	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	assert.Equal(t, []string{"ada@example.com"}, mail.to)
	assert.Equal(t, "Thank you for supporting Clean Water", mail.subject)
	assert.Contains(t, mail.body, "Dear Ada,")
	assert.Contains(t, mail.body, "25.00 EUR")
	assert.Contains(t, mail.body, "kdo_receipt")
	assert.Contains(t, mail.body, "10 March 2024")
	assert.Contains(t, mail.body, "Clean Water Foundation")
	assert.NotContains(t, mail.body, "recurring")
}

func TestReceiptSenderSkipsRefundedTransaction(t *testing.T) {
	f := newReceiptFixture(t)
	tx := f.seed(t, gatewaydomain.StatusPaid)
	require.NoError(t, tx.SetRefund(transactiondomain.Refund{Refunded: decimal.RequireFromString("25.00"), Remaining: decimal.Zero, Currency: "EUR"}))
	require.NoError(t, f.transactions.Save(context.Background(), tx))

	require.NoError(t, f.sender.Handle(context.Background(), receiptJob("kdo_receipt")))
	assert.Empty(t, f.mailer.sent)
}

func TestReceiptSenderSkipsUnpaidTransaction(t *testing.T) {
	f := newReceiptFixture(t)
	f.seed(t, gatewaydomain.StatusExpired)

	require.NoError(t, f.sender.Handle(context.Background(), receiptJob("kdo_receipt")))
	assert.Empty(t, f.mailer.sent)
}

func TestReceiptSenderRejectsUnknownOrder(t *testing.T) {
	f := newReceiptFixture(t)

	err := f.sender.Handle(context.Background(), receiptJob("kdo_missing"))
	assert.ErrorIs(t, err, domain.ErrInvalidJob)

	err = f.sender.Handle(context.Background(), domain.Job{Event: domain.EventProcessPaidTransaction})
	assert.ErrorIs(t, err, domain.ErrInvalidJob)
}

func TestReceiptSenderReturnsMailError(t *testing.T) {
	f := newReceiptFixture(t)
	f.seed(t, gatewaydomain.StatusPaid)
	f.mailer.err = errors.New("smtp down")

	err := f.sender.Handle(context.Background(), receiptJob("kdo_receipt"))
	assert.EqualError(t, err, "smtp down")
}

func TestWorkerRoutesByEvent(t *testing.T) {
	w := NewWorker(zap.NewNop())
	var got []string
	w.Register("ping", func(_ context.Context, job domain.Job) error {
		got = append(got, job.ID)
		return nil
	})

	require.NoError(t, w.Run(context.Background(), domain.Job{ID: "a", Event: "ping"}))
	assert.Equal(t, []string{"a"}, got)

	err := w.Run(context.Background(), domain.Job{ID: "b", Event: "pong"})
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)
}
