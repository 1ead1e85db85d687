package order

import (
	"go.uber.org/fx"

	"github.com/farmgate-io/farmgate/internal/messaging"
)

// Module provides the order service to Fx, binding the messaging client as
// the narrow publish capability the builder needs.
var Module = fx.Options(
	fx.Provide(func(client messaging.Client) Publisher { return client }),
	fx.Provide(NewService),
)
