package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/entity"
	productrepo "github.com/farmgate-io/farmgate/internal/repository/product"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/farmgate-io/farmgate/service/product")

// CreateInput carries a new catalog entry.
type CreateInput struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	Unit          string
	Image         string
	CategoryID    string
}

// UpdateInput patches a catalog entry; nil fields stay untouched.
type UpdateInput struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	StockQuantity *int
	Unit          *string
	Image         *string
	CategoryID    *string
}

// Service maintains the product catalog consulted during order placement.
type Service struct {
	repo   *productrepo.Repository
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *productrepo.Repository
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{repo: p.Repository, logger: p.Logger}
}

// Create adds a product to the catalog.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Create", trace.WithAttributes(attribute.String("product.name", in.Name)))
	defer span.End()

	if in.Name == "" {
		return nil, errorbank.BadRequest("product name is required")
	}
	if in.Price.IsNegative() {
		return nil, errorbank.BadRequest("product price must not be negative")
	}
	if in.StockQuantity < 0 {
		return nil, errorbank.BadRequest("stock quantity must not be negative")
	}

	now := time.Now().UTC()
	product := &entity.Product{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
		Unit:          in.Unit,
		Image:         in.Image,
		CategoryID:    in.CategoryID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create product", errorbank.WithCause(err))
	}
	return product, nil
}

// Get fetches a product by id.
func (s *Service) Get(ctx context.Context, id string) (*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Get", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, productrepo.ErrNotFound) {
			return nil, errorbank.NotFound(fmt.Sprintf("product %s not found", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load product", errorbank.WithCause(err))
	}
	return product, nil
}

// List returns the active catalog.
func (s *Service) List(ctx context.Context) ([]*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.List")
	defer span.End()

	products, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to fetch products", errorbank.WithCause(err))
	}
	return products, nil
}

// Update patches a product's fields.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Update", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, productrepo.ErrNotFound) {
			return nil, errorbank.NotFound(fmt.Sprintf("product %s not found", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load product", errorbank.WithCause(err))
	}

	if in.Name != nil {
		product.Name = *in.Name
	}
	if in.Description != nil {
		product.Description = *in.Description
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return nil, errorbank.BadRequest("product price must not be negative")
		}
		product.Price = *in.Price
	}
	if in.StockQuantity != nil {
		if *in.StockQuantity < 0 {
			return nil, errorbank.BadRequest("stock quantity must not be negative")
		}
		product.StockQuantity = *in.StockQuantity
	}
	if in.Unit != nil {
		product.Unit = *in.Unit
	}
	if in.Image != nil {
		product.Image = *in.Image
	}
	if in.CategoryID != nil {
		product.CategoryID = *in.CategoryID
	}

	if err := s.repo.Save(ctx, product); err != nil {
		if errors.Is(err, productrepo.ErrNotFound) {
			return nil, errorbank.NotFound(fmt.Sprintf("product %s not found", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update product", errorbank.WithCause(err))
	}
	return product, nil
}

// Remove soft-deletes a product from the catalog.
func (s *Service) Remove(ctx context.Context, id string) error {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Remove", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, productrepo.ErrNotFound) {
			return errorbank.NotFound(fmt.Sprintf("product %s not found", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete product", errorbank.WithCause(err))
	}
	return nil
}
