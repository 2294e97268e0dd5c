package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kudos/internal/subscription/domain"
	"github.com/smallbiznis/kudos/pkg/db/option"
	"github.com/smallbiznis/kudos/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.Subscription]
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.Subscription](db)}
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	return r.store.FindOne(ctx, repository.Where(map[string]any{"id": id}))
}

func (r *repo) FindByTransactionID(ctx context.Context, transactionID snowflake.ID) (*domain.Subscription, error) {
	return r.store.FindOne(ctx, repository.Where(map[string]any{"transaction_id": transactionID}))
}

func (r *repo) FindByVendorID(ctx context.Context, vendorSubscriptionID string) (*domain.Subscription, error) {
	vendorSubscriptionID = strings.TrimSpace(vendorSubscriptionID)
	if vendorSubscriptionID == "" {
		return nil, nil
	}
	return r.store.FindOne(ctx, repository.Where(map[string]any{"vendor_subscription_id": vendorSubscriptionID}))
}

func (r *repo) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Subscription, error) {
	fields := map[string]any{}
	if status := strings.TrimSpace(filter.Status); status != "" {
		fields["status"] = status
	}
	return r.store.FindAll(ctx, repository.Where(fields),
		option.WithBefore(filter.BeforeID),
		option.WithSortBy("id", "desc"),
		option.WithLimit(filter.Limit),
	)
}

func (r *repo) Save(ctx context.Context, sub *domain.Subscription) error {
	return r.store.Save(ctx, sub)
}
