package providers

import (
	"github.com/smallbiznis/kudos/internal/providers/email"
	"github.com/smallbiznis/kudos/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
