package account

import (
	"github.com/stemforge/stemforge/internal/account/repository"
	"github.com/stemforge/stemforge/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
