package export

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/cache"
	"github.com/farmgate-io/farmgate/internal/config"
)

// Module provides the export pipeline to Fx.
var Module = fx.Provide(func(cfg config.Config, store cache.Store, logger *zap.Logger) *Pipeline {
	return NewPipeline(cfg.Export, store, logger)
})
