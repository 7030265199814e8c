package pipeline

import (
	"github.com/stemforge/stemforge/internal/pipeline/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pipeline",
	fx.Provide(service.NewService),
)
