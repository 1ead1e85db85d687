package product

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/farmgate-io/farmgate/internal/dto"
	"github.com/farmgate-io/farmgate/internal/presentation/http/response"
	productsvc "github.com/farmgate-io/farmgate/internal/service/product"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/farmgate-io/farmgate/transport/http/product")

// Handler exposes catalog endpoints over HTTP.
type Handler struct {
	svc *productsvc.Service
}

// NewHandler constructs a product Handler.
func NewHandler(svc *productsvc.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/products")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
}

type createPayload struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Unit          string          `json:"unit"`
	Image         string          `json:"image"`
	CategoryID    string          `json:"category_id"`
}

type updatePayload struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity *int             `json:"stock_quantity"`
	Unit          *string          `json:"unit"`
	Image         *string          `json:"image"`
	CategoryID    *string          `json:"category_id"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "products.create",
		trace.WithAttributes(attribute.String("product.name", payload.Name)))
	defer span.End()

	product, err := h.svc.Create(ctx, productsvc.CreateInput{
		Name:          payload.Name,
		Description:   payload.Description,
		Price:         payload.Price,
		StockQuantity: payload.StockQuantity,
		Unit:          payload.Unit,
		Image:         payload.Image,
		CategoryID:    payload.CategoryID,
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.FromProduct(product)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "products.list")
	defer span.End()

	products, err := h.svc.List(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromProducts(products)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "products.getByID",
		trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	product, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromProduct(product)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload updatePayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "products.update",
		trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	product, err := h.svc.Update(ctx, id, productsvc.UpdateInput{
		Name:          payload.Name,
		Description:   payload.Description,
		Price:         payload.Price,
		StockQuantity: payload.StockQuantity,
		Unit:          payload.Unit,
		Image:         payload.Image,
		CategoryID:    payload.CategoryID,
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromProduct(product)).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "products.remove",
		trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	if err := h.svc.Remove(ctx, id); err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusNoContent).Build()
}
