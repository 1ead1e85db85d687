package payment

import (
	"go.uber.org/fx"

	"github.com/farmgate-io/farmgate/internal/service/status"
)

// Module provides the payment service to Fx.
var Module = fx.Options(
	fx.Provide(func(svc *status.Service) StatusEngine { return svc }),
	fx.Provide(NewService),
)
