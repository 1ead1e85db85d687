package http

import (
	"go.uber.org/fx"

	exporttransport "github.com/farmgate-io/farmgate/internal/transport/http/export"
	ordertransport "github.com/farmgate-io/farmgate/internal/transport/http/order"
	paymenttransport "github.com/farmgate-io/farmgate/internal/transport/http/payment"
	producttransport "github.com/farmgate-io/farmgate/internal/transport/http/product"
	reporttransport "github.com/farmgate-io/farmgate/internal/transport/http/report"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	producttransport.Module,
	reporttransport.Module,
	exporttransport.Module,
	paymenttransport.Module,
)
