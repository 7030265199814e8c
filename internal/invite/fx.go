package invite

import (
	"github.com/stemforge/stemforge/internal/invite/repository"
	"github.com/stemforge/stemforge/internal/invite/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invite",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
