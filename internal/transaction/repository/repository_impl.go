package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kudos/internal/transaction/domain"
	"github.com/smallbiznis/kudos/pkg/db/option"
	"github.com/smallbiznis/kudos/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.Transaction]
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.Transaction](db)}
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Transaction, error) {
	return r.store.FindOne(ctx, repository.Where(map[string]any{"id": id}))
}

func (r *repo) FindByOrderOrPayment(ctx context.Context, orderID, paymentID string) (*domain.Transaction, error) {
	fields := map[string]any{}
	if v := strings.TrimSpace(orderID); v != "" {
		fields["order_id"] = v
	}
	if v := strings.TrimSpace(paymentID); v != "" {
		fields["vendor_payment_id"] = v
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return r.store.FindOne(ctx, repository.AnyOf(fields), option.WithSortBy("id", "asc"))
}

func (r *repo) FindByOrderID(ctx context.Context, orderID string) (*domain.Transaction, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, nil
	}
	return r.store.FindOne(ctx, repository.Where(map[string]any{"order_id": orderID}))
}

func (r *repo) FindByCampaign(ctx context.Context, campaignID snowflake.ID, status string) ([]*domain.Transaction, error) {
	fields := map[string]any{"campaign_id": campaignID}
	if status = strings.TrimSpace(status); status != "" {
		fields["status"] = status
	}
	return r.store.FindAll(ctx, repository.Where(fields))
}

func (r *repo) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Transaction, error) {
	fields := map[string]any{}
	if filter.CampaignID != nil {
		fields["campaign_id"] = *filter.CampaignID
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		fields["status"] = status
	}
	return r.store.FindAll(ctx, repository.Where(fields),
		option.WithBefore(filter.BeforeID),
		option.WithSortBy("id", "desc"),
		option.WithLimit(filter.Limit),
	)
}

func (r *repo) Save(ctx context.Context, tx *domain.Transaction) error {
	return r.store.Save(ctx, tx)
}
