package donor

import (
	"github.com/smallbiznis/kudos/internal/donor/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("donor.repository",
	fx.Provide(repository.Provide),
)
