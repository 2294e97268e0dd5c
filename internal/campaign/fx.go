package campaign

import (
	"github.com/smallbiznis/kudos/internal/campaign/repository"
	"github.com/smallbiznis/kudos/internal/campaign/service"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
