package export

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/farmgate-io/farmgate/internal/config"
	"github.com/farmgate-io/farmgate/internal/event"
	"github.com/farmgate-io/farmgate/internal/messaging"
	"github.com/farmgate-io/farmgate/internal/presentation/http/response"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/farmgate-io/farmgate/transport/http/export")

// Handler queues export jobs over HTTP. The actual CSV generation happens in
// the worker; the endpoint only enqueues and acknowledges.
type Handler struct {
	client messaging.Client
	topic  string
}

// NewHandler constructs an export Handler.
func NewHandler(client messaging.Client, cfg config.Config) *Handler {
	return &Handler{client: client, topic: cfg.Messaging.Kafka.ExportTopic}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/exports/orders", h.queueOrderExport)
}

type exportPayload struct {
	Filename string `json:"filename"`
}

func (h *Handler) queueOrderExport(c echo.Context) error {
	b := response.New(c)

	var payload exportPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.Filename == "" {
		return b.WithError(errorbank.BadRequest("filename is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "exports.queueOrderExport",
		trace.WithAttributes(attribute.String("export.filename", payload.Filename)))
	defer span.End()

	job := event.ExportRequested{
		Filename:    payload.Filename,
		RequestedAt: time.Now().UTC(),
	}
	value, err := json.Marshal(job)
	if err != nil {
		return b.WithError(errorbank.Internal("failed to encode export request", errorbank.WithCause(err))).Build()
	}

	if err := h.client.Publish(ctx, h.topic, []byte(payload.Filename), value); err != nil {
		return b.WithError(errorbank.Upstream("failed to queue export", errorbank.WithCause(err))).Build()
	}

	return b.WithStatus(http.StatusAccepted).WithData(map[string]string{
		"filename": payload.Filename,
		"status":   "queued",
	}).Build()
}
