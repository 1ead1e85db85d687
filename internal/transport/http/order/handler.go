package order

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/farmgate-io/farmgate/internal/dto"
	"github.com/farmgate-io/farmgate/internal/entity"
	"github.com/farmgate-io/farmgate/internal/presentation/http/response"
	ordersvc "github.com/farmgate-io/farmgate/internal/service/order"
	statussvc "github.com/farmgate-io/farmgate/internal/service/status"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/farmgate-io/farmgate/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	orders *ordersvc.Service
	status *statussvc.Service
}

// NewHandler constructs an order Handler.
func NewHandler(orders *ordersvc.Service, status *statussvc.Service) *Handler {
	return &Handler{orders: orders, status: status}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
	g.PATCH("/:id/status", h.updateStatus)
	g.POST("/:id/cancel", h.cancel)
	g.GET("/:id/status-history", h.statusHistory)
}

type itemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createPayload struct {
	UserID       int64          `json:"user_id"`
	Items        []itemPayload  `json:"items"`
	PaymentRef   string         `json:"payment_ref"`
	PublicKeyRef string         `json:"public_key_ref"`
	Metadata     map[string]any `json:"metadata"`
}

type updatePayload struct {
	PaymentRef   *string        `json:"payment_ref"`
	PublicKeyRef *string        `json:"public_key_ref"`
	Metadata     map[string]any `json:"metadata"`
	Items        []itemPayload  `json:"items"`
}

type statusPayload struct {
	Status string `json:"status"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.UserID <= 0 {
		return b.WithError(errorbank.BadRequest("user_id is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create",
		trace.WithAttributes(attribute.Int64("order.user_id", payload.UserID)))
	defer span.End()

	order, err := h.orders.Create(ctx, ordersvc.CreateInput{
		UserID:       payload.UserID,
		Items:        toItemInputs(payload.Items),
		PaymentRef:   payload.PaymentRef,
		PublicKeyRef: payload.PublicKeyRef,
		Metadata:     payload.Metadata,
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, err := h.orders.List(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromOrders(orders)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID",
		trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.orders.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload updatePayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.update",
		trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.orders.Update(ctx, id, ordersvc.UpdateInput{
		PaymentRef:   payload.PaymentRef,
		PublicKeyRef: payload.PublicKeyRef,
		Metadata:     payload.Metadata,
		Items:        toItemInputs(payload.Items),
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.remove",
		trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := h.orders.Remove(ctx, id); err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusNoContent).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload statusPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", payload.Status),
	))
	defer span.End()

	order, err := h.status.UpdateOrderStatus(ctx, id, entity.OrderStatus(payload.Status))
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel",
		trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.status.UpdateOrderStatus(ctx, id, entity.StatusCanceled)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) statusHistory(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.statusHistory",
		trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	history, err := h.status.GetOrderStatusHistory(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(history).Build()
}

func toItemInputs(items []itemPayload) []ordersvc.ItemInput {
	out := make([]ordersvc.ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, ordersvc.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}
