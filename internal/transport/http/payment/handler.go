package payment

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/farmgate-io/farmgate/internal/presentation/http/response"
	paymentsvc "github.com/farmgate-io/farmgate/internal/service/payment"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/farmgate-io/farmgate/transport/http/payment")

// Handler exposes payment endpoints over HTTP.
type Handler struct {
	svc *paymentsvc.Service
}

// NewHandler constructs a payment Handler.
func NewHandler(svc *paymentsvc.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/payments")
	g.POST("", h.process)
	g.POST("/:transaction_id/refund", h.refund)
	g.POST("/webhook", h.webhook)
}

type processPayload struct {
	UserID   int64           `json:"user_id"`
	OrderID  string          `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (h *Handler) process(c echo.Context) error {
	b := response.New(c)

	var payload processPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "payments.process",
		trace.WithAttributes(attribute.String("payment.order_id", payload.OrderID)))
	defer span.End()

	result, err := h.svc.Process(ctx, paymentsvc.ProcessInput{
		UserID:   payload.UserID,
		OrderID:  payload.OrderID,
		Amount:   payload.Amount,
		Currency: payload.Currency,
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(result).Build()
}

func (h *Handler) refund(c echo.Context) error {
	b := response.New(c)
	transactionID := c.Param("transaction_id")

	ctx, span := httpTracer.Start(c.Request().Context(), "payments.refund",
		trace.WithAttributes(attribute.String("payment.transaction_id", transactionID)))
	defer span.End()

	if err := h.svc.Refund(ctx, transactionID); err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(map[string]string{"transaction_id": transactionID, "status": "refunded"}).Build()
}

func (h *Handler) webhook(c echo.Context) error {
	b := response.New(c)

	var evt stripe.Event
	if err := json.NewDecoder(c.Request().Body).Decode(&evt); err != nil {
		return b.WithError(errorbank.BadRequest("malformed webhook payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "payments.webhook",
		trace.WithAttributes(attribute.String("payment.event_type", string(evt.Type))))
	defer span.End()

	if err := h.svc.HandleWebhook(ctx, evt); err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(map[string]string{"received": "true"}).Build()
}
