package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kudos/internal/donor/domain"
	"github.com/smallbiznis/kudos/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.Donor]
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.Donor](db)}
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Donor, error) {
	return r.store.FindOne(ctx, repository.Where(map[string]any{"id": id}))
}

func (r *repo) FindByEmail(ctx context.Context, email string) (*domain.Donor, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return r.store.FindOne(ctx, repository.Where(map[string]any{"email": email}))
}

func (r *repo) FindByCustomerID(ctx context.Context, customerID string) (*domain.Donor, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	return r.store.FindOne(ctx, repository.Where(map[string]any{"vendor_customer_id": customerID}))
}

func (r *repo) Save(ctx context.Context, donor *domain.Donor) error {
	return r.store.Save(ctx, donor)
}
