package ledger

import (
	"github.com/stemforge/stemforge/internal/ledger/repository"
	"github.com/stemforge/stemforge/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
