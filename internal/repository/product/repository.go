package product

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/farmgate-io/farmgate/internal/database"
	"github.com/farmgate-io/farmgate/internal/entity"
)

var repoTracer = otel.Tracer("github.com/farmgate-io/farmgate/repository/product")

var (
	// ErrNotFound is returned when a product is missing.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a decrement would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Repository encapsulates catalog access. It doubles as the inventory gateway
// consulted during order placement.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// FindByID fetches an active product by primary key.
func (r *Repository) FindByID(ctx context.Context, id string) (*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.FindByID", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	product := new(entity.Product)
	err := r.reader.NewSelect().Model(product).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return product, nil
}

// List returns all active products.
func (r *Repository) List(ctx context.Context) ([]*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.List")
	defer span.End()

	var products []*entity.Product
	if err := r.reader.NewSelect().Model(&products).Order("name ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return products, nil
}

// Create persists a new product.
func (r *Repository) Create(ctx context.Context, product *entity.Product) error {
	if product == nil {
		return errors.New("nil product")
	}
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Create", trace.WithAttributes(attribute.String("product.id", product.ID)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(product).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// Save updates a persisted product.
func (r *Repository) Save(ctx context.Context, product *entity.Product) error {
	if product == nil {
		return errors.New("nil product")
	}
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Save", trace.WithAttributes(attribute.String("product.id", product.ID)))
	defer span.End()

	product.UpdatedAt = time.Now().UTC()
	res, err := r.writer.NewUpdate().Model(product).WherePK().Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	}
	return nil
}

// SoftDelete hides a product from the catalog without removing the row.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.SoftDelete", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.Product)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	}
	return nil
}

// DecrementStock atomically reduces a product's stock by quantity. The guard
// in the WHERE clause keeps concurrent decrements from overselling a row.
func (r *Repository) DecrementStock(ctx context.Context, id string, quantity int) error {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.DecrementStock",
		trace.WithAttributes(attribute.String("product.id", id), attribute.Int("quantity", quantity)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Product)(nil)).
		Set("stock_quantity = stock_quantity - ?", quantity).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("stock_quantity >= ?", quantity).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		span.SetStatus(codes.Error, "insufficient stock")
		return ErrInsufficientStock
	}
	return nil
}

// RestoreStock adds quantity back to a product's stock. Used to compensate a
// reservation when a later step of order placement fails.
func (r *Repository) RestoreStock(ctx context.Context, id string, quantity int) error {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.RestoreStock",
		trace.WithAttributes(attribute.String("product.id", id), attribute.Int("quantity", quantity)))
	defer span.End()

	_, err := r.writer.NewUpdate().
		Model((*entity.Product)(nil)).
		Set("stock_quantity = stock_quantity + ?", quantity).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}
