package seed

import (
	"context"
	"errors"

	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	"go.uber.org/zap"
)

const (
	defaultCampaignName = "General donations"
	defaultCampaignSlug = "general"
)

// EnsureDefaultCampaign creates a catch-all campaign when none exist so the
// donation form works out of the box.
func EnsureDefaultCampaign(ctx context.Context, campaigns campaigndomain.Service, log *zap.Logger) error {
	if campaigns == nil {
		return errors.New("seed campaign service is required")
	}

	existing, err := campaigns.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	campaign, err := campaigns.Create(ctx, campaigndomain.CreateCampaignRequest{
		Name:             defaultCampaignName,
		Slug:             defaultCampaignSlug,
		MinimumDonation:  "1",
		AllowRecurring:   true,
		FrequencyOptions: []string{"1 month", "3 months", "12 months"},
		DurationOptions:  []int{0, 1, 2, 5},
	})
	if err != nil {
		return err
	}

	if log != nil {
		log.Info("default campaign created", zap.String("campaign_id", campaign.ID.String()), zap.String("slug", campaign.Slug))
	}
	return nil
}
