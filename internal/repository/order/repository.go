package order

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

var repoTracer = otel.Tracer("github.com/farmgate-io/farmgate/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// Aggregate carries the result of a date-range aggregation over orders.
type Aggregate struct {
	TotalSales   sql.NullString `bun:"total_sales"`
	TotalOrders  int64          `bun:"total_orders"`
	AverageOrder sql.NullString `bun:"average_order"`
}

// Repository encapsulates read/write access for orders.
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

// Create persists a new order together with its items in one transaction.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.id", order.ID)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		if len(order.Items) > 0 {
			if _, err := tx.NewInsert().Model(&order.Items).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches an active order by primary key. Soft-deleted rows are
// filtered out by bun's soft_delete handling on every read path.
func (r *Repository) GetByID(ctx context.Context, id string, includeItems bool) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	q := r.reader.NewSelect().Model(order).Where("id = ?", id)
	if includeItems {
		q = q.Relation("Items")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// List returns all active orders, optionally with their items.
func (r *Repository) List(ctx context.Context, includeItems bool) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	var orders []*entity.Order
	q := r.reader.NewSelect().Model(&orders).Order("created_at ASC")
	if includeItems {
		q = q.Relation("Items")
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// ListPage returns a keyset-paginated slice of active orders with items,
// ordered by id. afterID empty starts from the beginning. Used by the export
// worker to stream the order book without loading it whole.
func (r *Repository) ListPage(ctx context.Context, afterID string, limit int) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListPage", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	var orders []*entity.Order
	q := r.reader.NewSelect().Model(&orders).Relation("Items").Order("id ASC").Limit(limit)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// Save updates a persisted order's mutable columns.
func (r *Repository) Save(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Save", trace.WithAttributes(attribute.String("order.id", order.ID)))
	defer span.End()

	order.UpdatedAt = time.Now().UTC()
	res, err := r.writer.NewUpdate().Model(order).WherePK().Exec(ctx)
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

// ReplaceItems deletes an order's current items and inserts the new set,
// updating the order row in the same transaction.
func (r *Repository) ReplaceItems(ctx context.Context, order *entity.Order, items []*entity.OrderItem) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ReplaceItems", trace.WithAttributes(attribute.String("order.id", order.ID)))
	defer span.End()

	order.UpdatedAt = time.Now().UTC()
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entity.OrderItem)(nil)).Where("order_id = ?", order.ID).Exec(ctx); err != nil {
			return err
		}
		if len(items) > 0 {
			if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
				return err
			}
		}
		_, err := tx.NewUpdate().Model(order).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replace failed")
		return err
	}
	order.Items = items
	return nil
}

// SoftDelete marks an order deleted without removing the row. Its items stay
// in place for audit; reads exclude the order from then on.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SoftDelete", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.Order)(nil)).Where("id = ?", id).Exec(ctx)
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

// AggregateByDateRange sums, counts, and averages order totals created inside
// [start, end].
func (r *Repository) AggregateByDateRange(ctx context.Context, start, end time.Time) (*Aggregate, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.AggregateByDateRange")
	defer span.End()

	agg := new(Aggregate)
	err := r.reader.NewSelect().
		Model((*entity.Order)(nil)).
		ColumnExpr("SUM(total_amount) AS total_sales").
		ColumnExpr("COUNT(id) AS total_orders").
		ColumnExpr("AVG(total_amount) AS average_order").
		Where("created_at BETWEEN ? AND ?", start, end).
		Scan(ctx, agg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate failed")
		return nil, err
	}
	return agg, nil
}
