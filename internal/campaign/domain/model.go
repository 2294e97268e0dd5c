package domain

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Campaign is an operator-defined fundraising target.
type Campaign struct {
	ID               snowflake.ID                `gorm:"primaryKey" json:"id"`
	Name             string                      `gorm:"column:name;not null" json:"name"`
	Slug             string                      `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Description      string                      `gorm:"column:description" json:"description,omitempty"`
	Currency         string                      `gorm:"column:currency;size:3;not null" json:"currency"`
	MinimumDonation  decimal.Decimal             `gorm:"column:minimum_donation;type:numeric(12,2);not null" json:"minimum_donation"`
	MaximumDonation  decimal.Decimal             `gorm:"column:maximum_donation;type:numeric(12,2);not null" json:"maximum_donation"`
	Goal             decimal.Decimal             `gorm:"column:goal;type:numeric(12,2);not null" json:"goal"`
	AdditionalFunds  decimal.Decimal             `gorm:"column:additional_funds;type:numeric(12,2);not null" json:"additional_funds"`
	ShowGoal         bool                        `gorm:"column:show_goal;not null" json:"show_goal"`
	AllowRecurring   bool                        `gorm:"column:allow_recurring;not null" json:"allow_recurring"`
	FrequencyOptions datatypes.JSONSlice[string] `gorm:"column:frequency_options" json:"frequency_options"`
	DurationOptions  datatypes.JSONSlice[int]    `gorm:"column:duration_options" json:"duration_options"`
	CreatedAt        time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"not null" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

// AllowsFrequency reports whether interval may be chosen for a recurring donation.
// An empty option list accepts any interval.
func (c *Campaign) AllowsFrequency(interval string) bool {
	if len(c.FrequencyOptions) == 0 {
		return true
	}
	return slices.Contains([]string(c.FrequencyOptions), interval)
}

// AllowsDuration reports whether years is one of the configured durations.
// Zero (no end date) is always allowed.
func (c *Campaign) AllowsDuration(years int) bool {
	if years == 0 || len(c.DurationOptions) == 0 {
		return true
	}
	return slices.Contains([]int(c.DurationOptions), years)
}

// Total is the amount raised so far.
type Total struct {
	CampaignID      snowflake.ID    `json:"campaign_id"`
	Currency        string          `json:"currency"`
	Paid            decimal.Decimal `json:"paid"`
	Refunded        decimal.Decimal `json:"refunded"`
	AdditionalFunds decimal.Decimal `json:"additional_funds"`
	Total           decimal.Decimal `json:"total"`
	Goal            decimal.Decimal `json:"goal"`
	Donations       int             `json:"donations"`
	// Progress is the percentage of the goal reached, zero when no goal is set.
	Progress decimal.Decimal `json:"progress"`
}

type CreateCampaignRequest struct {
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	Description      string   `json:"description"`
	Currency         string   `json:"currency"`
	MinimumDonation  string   `json:"minimum_donation"`
	MaximumDonation  string   `json:"maximum_donation"`
	Goal             string   `json:"goal"`
	AdditionalFunds  string   `json:"additional_funds"`
	ShowGoal         bool     `json:"show_goal"`
	AllowRecurring   bool     `json:"allow_recurring"`
	FrequencyOptions []string `json:"frequency_options"`
	DurationOptions  []int    `json:"duration_options"`
}

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Campaign, error)
	FindBySlug(ctx context.Context, slug string) (*Campaign, error)
	List(ctx context.Context) ([]*Campaign, error)
	Create(ctx context.Context, campaign *Campaign) error
}

type Service interface {
	Create(ctx context.Context, req CreateCampaignRequest) (*Campaign, error)
	Get(ctx context.Context, id string) (*Campaign, error)
	List(ctx context.Context) ([]*Campaign, error)
	Total(ctx context.Context, campaignID snowflake.ID) (Total, error)
}

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("campaign_not_found")
	ErrSlugTaken       = errors.New("slug_taken")
)
