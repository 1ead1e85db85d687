package report

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/farmgate-io/farmgate/internal/presentation/http/response"
	reportsvc "github.com/farmgate-io/farmgate/internal/service/report"
)

var httpTracer = otel.Tracer("github.com/farmgate-io/farmgate/transport/http/report")

// Handler exposes sales reporting endpoints over HTTP.
type Handler struct {
	svc *reportsvc.Service
}

// NewHandler constructs a report Handler.
func NewHandler(svc *reportsvc.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/reports")
	g.GET("/sales", h.sales)
	g.GET("/metrics", h.metrics)
}

func (h *Handler) sales(c echo.Context) error {
	b := response.New(c)
	start := c.QueryParam("start_date")
	end := c.QueryParam("end_date")

	ctx, span := httpTracer.Start(c.Request().Context(), "reports.sales", trace.WithAttributes(
		attribute.String("report.start", start),
		attribute.String("report.end", end),
	))
	defer span.End()

	report, err := h.svc.GetSalesReport(ctx, start, end)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(report).Build()
}

func (h *Handler) metrics(c echo.Context) error {
	b := response.New(c)
	start := c.QueryParam("start_date")
	end := c.QueryParam("end_date")

	ctx, span := httpTracer.Start(c.Request().Context(), "reports.metrics", trace.WithAttributes(
		attribute.String("report.start", start),
		attribute.String("report.end", end),
	))
	defer span.End()

	metrics, err := h.svc.GetOrderMetrics(ctx, start, end)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(metrics).Build()
}
