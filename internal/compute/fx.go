package compute

import (
	"github.com/stemforge/stemforge/internal/compute/client"
	"github.com/stemforge/stemforge/internal/compute/service"
	"go.uber.org/fx"
)

var Module = fx.Module("compute",
	fx.Provide(client.Provide),
	fx.Provide(service.NewPoller),
)
