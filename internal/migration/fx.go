package migration

import (
	"context"

	apikeydomain "github.com/smallbiznis/kudos/internal/apikey/domain"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	"github.com/smallbiznis/kudos/internal/config"
	"github.com/smallbiznis/kudos/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type bootstrapParams struct {
	fx.In

	DB        *gorm.DB
	Config    config.Config
	Log       *zap.Logger
	Campaigns campaigndomain.Service
	APIKeys   apikeydomain.Service
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p bootstrapParams) error {
		if err := Run(p.DB, p.Config.DBType); err != nil {
			return err
		}

		ctx := context.Background()
		log := p.Log.Named("migrations")
		if err := seed.EnsureDefaultCampaign(ctx, p.Campaigns, log); err != nil {
			return err
		}
		return p.APIKeys.EnsureBootstrap(ctx, p.Config.BootstrapAPIKey)
	}),
)
