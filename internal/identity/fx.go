package identity

import (
	"github.com/stemforge/stemforge/internal/identity/client"
	"github.com/stemforge/stemforge/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity",
	fx.Provide(client.Provide),
	fx.Provide(service.NewService),
)
