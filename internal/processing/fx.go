package processing

import (
	"github.com/stemforge/stemforge/internal/processing/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("processing.cache",
	fx.Provide(repository.Provide),
)
