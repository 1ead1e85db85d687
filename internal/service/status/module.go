package status

import (
	"go.uber.org/fx"

	"github.com/farmgate-io/farmgate/internal/messaging"
)

// Module provides the status engine to Fx.
var Module = fx.Options(
	fx.Provide(func(client messaging.Client) Publisher { return client }),
	fx.Provide(NewService),
)
