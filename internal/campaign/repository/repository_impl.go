package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kudos/internal/campaign/domain"
	"github.com/smallbiznis/kudos/pkg/db/option"
	"github.com/smallbiznis/kudos/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.Campaign]
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.Campaign](db)}
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Campaign, error) {
	return r.store.FindOne(ctx, repository.Where(map[string]any{"id": id}))
}

func (r *repo) FindBySlug(ctx context.Context, slug string) (*domain.Campaign, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	return r.store.FindOne(ctx, repository.Where(map[string]any{"slug": slug}))
}

func (r *repo) List(ctx context.Context) ([]*domain.Campaign, error) {
	return r.store.FindAll(ctx, repository.Predicate{}, option.WithSortBy("name", "asc"))
}

func (r *repo) Create(ctx context.Context, campaign *domain.Campaign) error {
	return r.store.Create(ctx, campaign)
}
