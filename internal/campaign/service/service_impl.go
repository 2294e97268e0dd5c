package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/kudos/internal/audit/domain"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	"github.com/smallbiznis/kudos/internal/config"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
	"github.com/smallbiznis/kudos/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         campaigndomain.Repository
	Transactions transactiondomain.Repository
	Audit        auditdomain.Service          `optional:"true"`
	Donation     *config.DonationConfigHolder `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	genID        *snowflake.Node
	repo         campaigndomain.Repository
	transactions transactiondomain.Repository
	audit        auditdomain.Service
	donation     *config.DonationConfigHolder
}

func NewService(p Params) campaigndomain.Service {
	return &Service{
		log:          p.Log.Named("campaign.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		transactions: p.Transactions,
		audit:        p.Audit,
		donation:     p.Donation,
	}
}

func (s *Service) Create(ctx context.Context, req campaigndomain.CreateCampaignRequest) (*campaigndomain.Campaign, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, campaigndomain.ErrInvalidName
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.donation.Get().DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, campaigndomain.ErrInvalidCurrency
	}

	minimum, err := parseAmount(req.MinimumDonation, decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}
	maximum, err := parseAmount(req.MaximumDonation, decimal.Zero)
	if err != nil {
		return nil, err
	}
	if maximum.IsPositive() && maximum.LessThan(minimum) {
		return nil, campaigndomain.ErrInvalidAmount
	}
	goal, err := parseAmount(req.Goal, decimal.Zero)
	if err != nil {
		return nil, err
	}
	additional, err := parseAmount(req.AdditionalFunds, decimal.Zero)
	if err != nil {
		return nil, err
	}

	campaignSlug := slug.Make(strings.TrimSpace(req.Slug))
	if campaignSlug == "" {
		campaignSlug = slug.Make(name)
	}
	existing, err := s.repo.FindBySlug(ctx, campaignSlug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, campaigndomain.ErrSlugTaken
	}

	now := time.Now().UTC()
	campaign := &campaigndomain.Campaign{
		ID:               s.genID.Generate(),
		Name:             name,
		Slug:             campaignSlug,
		Description:      strings.TrimSpace(req.Description),
		Currency:         currency,
		MinimumDonation:  minimum,
		MaximumDonation:  maximum,
		Goal:             goal,
		AdditionalFunds:  additional,
		ShowGoal:         req.ShowGoal,
		AllowRecurring:   req.AllowRecurring,
		FrequencyOptions: req.FrequencyOptions,
		DurationOptions:  req.DurationOptions,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, campaigndomain.ErrSlugTaken
		}
		return nil, err
	}

	if s.audit != nil {
		targetID := campaign.ID.String()
		_ = s.audit.AuditLog(ctx, "", nil, auditdomain.ActionCampaignCreated, "campaign", &targetID, map[string]any{
			"slug":     campaign.Slug,
			"currency": campaign.Currency,
		})
	}

	s.log.Info("campaign created", zap.String("campaign_id", campaign.ID.String()), zap.String("slug", campaign.Slug))
	return campaign, nil
}

func (s *Service) Get(ctx context.Context, id string) (*campaigndomain.Campaign, error) {
	campaignID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || campaignID == 0 {
		// fall back to slug lookups for public links
		campaign, slugErr := s.repo.FindBySlug(ctx, id)
		if slugErr != nil {
			return nil, slugErr
		}
		if campaign == nil {
			return nil, campaigndomain.ErrNotFound
		}
		return campaign, nil
	}

	campaign, err := s.repo.FindByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, campaigndomain.ErrNotFound
	}
	return campaign, nil
}

func (s *Service) List(ctx context.Context) ([]*campaigndomain.Campaign, error) {
	return s.repo.List(ctx)
}

// Total sums paid transactions, subtracts refunds and adds the manually
// recorded additional funds.
func (s *Service) Total(ctx context.Context, campaignID snowflake.ID) (campaigndomain.Total, error) {
	campaign, err := s.repo.FindByID(ctx, campaignID)
	if err != nil {
		return campaigndomain.Total{}, err
	}
	if campaign == nil {
		return campaigndomain.Total{}, campaigndomain.ErrNotFound
	}

	paidTx, err := s.transactions.FindByCampaign(ctx, campaignID, "paid")
	if err != nil {
		return campaigndomain.Total{}, err
	}

	paid := decimal.Zero
	refunded := decimal.Zero
	for _, tx := range paidTx {
		paid = paid.Add(tx.Value)
		refund, err := tx.Refund()
		if err != nil {
			s.log.Warn("unreadable refund summary", zap.String("order_id", tx.OrderID), zap.Error(err))
			continue
		}
		if refund != nil {
			refunded = refunded.Add(refund.Refunded)
		}
	}

	total := paid.Sub(refunded).Add(campaign.AdditionalFunds)
	progress := decimal.Zero
	if campaign.Goal.IsPositive() {
		progress = total.Div(campaign.Goal).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return campaigndomain.Total{
		CampaignID:      campaign.ID,
		Currency:        campaign.Currency,
		Paid:            paid,
		Refunded:        refunded,
		AdditionalFunds: campaign.AdditionalFunds,
		Total:           total,
		Goal:            campaign.Goal,
		Donations:       len(paidTx),
		Progress:        progress,
	}, nil
}

func parseAmount(raw string, def decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		return decimal.Zero, campaigndomain.ErrInvalidAmount
	}
	return value.Round(2), nil
}
