package pricing

import (
	"github.com/stemforge/stemforge/internal/pricing/repository"
	"github.com/stemforge/stemforge/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
