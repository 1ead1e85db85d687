package app

import (
	"go.uber.org/fx"

	"github.com/farmgate-io/farmgate/internal/backup"
	"github.com/farmgate-io/farmgate/internal/cache"
	"github.com/farmgate-io/farmgate/internal/config"
	"github.com/farmgate-io/farmgate/internal/database"
	"github.com/farmgate-io/farmgate/internal/export"
	"github.com/farmgate-io/farmgate/internal/logger"
	"github.com/farmgate-io/farmgate/internal/messaging"
	"github.com/farmgate-io/farmgate/internal/observability"
	repositoryorder "github.com/farmgate-io/farmgate/internal/repository/order"
	repositoryproduct "github.com/farmgate-io/farmgate/internal/repository/product"
	httpserver "github.com/farmgate-io/farmgate/internal/server/http"
	servicenotification "github.com/farmgate-io/farmgate/internal/service/notification"
	serviceorder "github.com/farmgate-io/farmgate/internal/service/order"
	servicepayment "github.com/farmgate-io/farmgate/internal/service/payment"
	serviceproduct "github.com/farmgate-io/farmgate/internal/service/product"
	servicereport "github.com/farmgate-io/farmgate/internal/service/report"
	servicestatus "github.com/farmgate-io/farmgate/internal/service/status"
	transporthttp "github.com/farmgate-io/farmgate/internal/transport/http"
	"github.com/farmgate-io/farmgate/internal/worker"
	workerexport "github.com/farmgate-io/farmgate/internal/worker/export"
	workernotification "github.com/farmgate-io/farmgate/internal/worker/notification"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryorder.Module,
	repositoryproduct.Module,
	serviceorder.Module,
	servicestatus.Module,
	serviceproduct.Module,
	servicereport.Module,
	servicepayment.Module,
	export.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
	backup.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	servicenotification.Module,
	worker.Module,
	workerexport.Module,
	workernotification.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
