package order

import (
	"context"
	"encoding/json"
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

	"github.com/farmgate-io/farmgate/internal/cache"
	"github.com/farmgate-io/farmgate/internal/config"
	"github.com/farmgate-io/farmgate/internal/entity"
	"github.com/farmgate-io/farmgate/internal/event"
	orderrepo "github.com/farmgate-io/farmgate/internal/repository/order"
	productrepo "github.com/farmgate-io/farmgate/internal/repository/product"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/farmgate-io/farmgate/service/order")

// paymentWindow is how long a fresh order may remain unpaid.
const paymentWindow = 5 * time.Minute

// Inventory resolves products for pricing and reserves stock during order
// placement. Implemented by the product repository.
type Inventory interface {
	FindByID(ctx context.Context, id string) (*entity.Product, error)
	DecrementStock(ctx context.Context, id string, quantity int) error
	RestoreStock(ctx context.Context, id string, quantity int) error
}

// Store is the order persistence surface the builder needs.
type Store interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id string, includeItems bool) (*entity.Order, error)
	List(ctx context.Context, includeItems bool) ([]*entity.Order, error)
	Save(ctx context.Context, order *entity.Order) error
	ReplaceItems(ctx context.Context, order *entity.Order, items []*entity.OrderItem) error
	SoftDelete(ctx context.Context, id string) error
}

// Publisher is the narrow publish capability handed to the builder for
// status-changed events.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value []byte) error
}

// ItemInput is one requested product line.
type ItemInput struct {
	ProductID string
	Quantity  int
}

// CreateInput carries everything needed to place an order.
type CreateInput struct {
	UserID       int64
	Items        []ItemInput
	PaymentRef   string
	PublicKeyRef string
	Metadata     map[string]any
}

// UpdateInput patches an existing order. Nil fields are left untouched; a
// non-empty Items slice replaces the whole item set.
type UpdateInput struct {
	PaymentRef   *string
	PublicKeyRef *string
	Metadata     map[string]any
	Items        []ItemInput
}

// Service builds and maintains orders: stock validation, pricing snapshots,
// and soft-deleting reads all live here.
type Service struct {
	repo        Store
	inventory   Inventory
	cache       cache.Store
	cacheTTL    time.Duration
	logger      *zap.Logger
	publisher   Publisher
	statusTopic string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *orderrepo.Repository
	Inventory  *productrepo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  Publisher
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:        p.Repository,
		inventory:   p.Inventory,
		cache:       p.Cache,
		cacheTTL:    p.Config.Cache.DefaultTTL,
		logger:      p.Logger,
		publisher:   p.Publisher,
		statusTopic: p.Config.Messaging.Kafka.StatusTopic,
	}
}

// newForTest builds a Service from its parts without the fx plumbing.
func newForTest(repo Store, inventory Inventory, store cache.Store, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		inventory:   inventory,
		cache:       store,
		cacheTTL:    time.Minute,
		logger:      logger,
		publisher:   publisher,
		statusTopic: "orders.status",
	}
}

// Create validates every requested item against the inventory, freezes prices
// and product snapshots, and persists the order as pending with an empty
// status history. The initial status-changed event (nil -> pending) goes out
// after persistence succeeds.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(attribute.Int64("order.user_id", in.UserID)))
	defer span.End()

	if len(in.Items) == 0 {
		return nil, errorbank.BadRequest("order requires at least one item")
	}

	orderID := uuid.NewString()
	items, total, err := s.buildItems(ctx, orderID, in.Items)
	if err != nil {
		return nil, err
	}

	if err := s.reserveStock(ctx, items); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &entity.Order{
		ID:              orderID,
		UserID:          in.UserID,
		TotalAmount:     total,
		Status:          entity.StatusPending,
		TransactionRef:  in.PaymentRef,
		PublicKeyRef:    in.PublicKeyRef,
		PaymentDeadline: now.Add(paymentWindow),
		Metadata:        in.Metadata,
		StatusHistory:   []entity.StatusHistoryEntry{},
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		s.releaseStock(ctx, items)
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", order.ID), zap.Error(err))
	}

	s.publishStatusChanged(ctx, order.ID, nil, entity.StatusPending)
	return order, nil
}

// buildItems resolves and prices each requested line sequentially. Validation
// is per item in request order; the first failure aborts the whole build.
func (s *Service) buildItems(ctx context.Context, orderID string, inputs []ItemInput) ([]*entity.OrderItem, decimal.Decimal, error) {
	items := make([]*entity.OrderItem, 0, len(inputs))
	total := decimal.Zero

	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, decimal.Zero, errorbank.BadRequest("item quantity must be positive",
				errorbank.WithDetail("product_id", in.ProductID))
		}

		product, err := s.inventory.FindByID(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, productrepo.ErrNotFound) {
				return nil, decimal.Zero, errorbank.NotFound(fmt.Sprintf("product %s not found", in.ProductID))
			}
			return nil, decimal.Zero, errorbank.Internal("failed to resolve product", errorbank.WithCause(err))
		}
		if product.StockQuantity < in.Quantity {
			return nil, decimal.Zero, errorbank.InsufficientStock(
				fmt.Sprintf("product %s has only %d items in stock", in.ProductID, product.StockQuantity),
				errorbank.WithDetail("product_id", in.ProductID),
				errorbank.WithDetail("available", product.StockQuantity),
				errorbank.WithDetail("requested", in.Quantity),
			)
		}

		totalPrice := product.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))
		total = total.Add(totalPrice)

		items = append(items, &entity.OrderItem{
			ID:              uuid.NewString(),
			OrderID:         orderID,
			ProductID:       product.ID,
			Quantity:        in.Quantity,
			PricePerUnit:    product.Price,
			TotalPrice:      totalPrice,
			ProductSnapshot: product.Snapshot(),
		})
	}

	return items, total, nil
}

// reserveStock decrements inventory for every line. The guarded decrement is
// what actually prevents overselling under concurrent placement; the check in
// buildItems only exists to fail early with a useful error. On a mid-way
// failure, already reserved lines are restored.
func (s *Service) reserveStock(ctx context.Context, items []*entity.OrderItem) error {
	for i, item := range items {
		if err := s.inventory.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.releaseStock(ctx, items[:i])
			if errors.Is(err, productrepo.ErrInsufficientStock) {
				return errorbank.InsufficientStock(
					fmt.Sprintf("product %s is out of stock", item.ProductID),
					errorbank.WithDetail("product_id", item.ProductID),
					errorbank.WithDetail("requested", item.Quantity),
				)
			}
			return errorbank.Internal("failed to reserve stock", errorbank.WithCause(err))
		}
	}
	return nil
}

// releaseStock compensates reservations best effort; a failed restore is
// logged and skipped.
func (s *Service) releaseStock(ctx context.Context, items []*entity.OrderItem) {
	for _, item := range items {
		if err := s.inventory.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("stock restore failed",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

// Get retrieves an order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.String("id", id), zap.Error(err))
	}

	order, err := s.repo.GetByID(ctx, id, true)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound(fmt.Sprintf("order %s not found", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", id), zap.Error(err))
	}

	return order, nil
}

// List returns all active orders with their items.
func (s *Service) List(ctx context.Context) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, err := s.repo.List(ctx, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to fetch orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// Update patches payment references and metadata, and replaces the item set
// when a non-empty Items slice is supplied. Replaced items are re-validated
// and re-priced exactly like in Create; the order total is recomputed from
// the new set.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Update", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := s.repo.GetByID(ctx, id, true)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound(fmt.Sprintf("order %s not found", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if in.PaymentRef != nil {
		order.TransactionRef = *in.PaymentRef
	}
	if in.PublicKeyRef != nil {
		order.PublicKeyRef = *in.PublicKeyRef
	}
	if in.Metadata != nil {
		order.Metadata = in.Metadata
	}

	if len(in.Items) > 0 {
		items, total, err := s.buildItems(ctx, order.ID, in.Items)
		if err != nil {
			return nil, err
		}
		if err := s.reserveStock(ctx, items); err != nil {
			return nil, err
		}
		previous := order.Items
		order.TotalAmount = total
		if err := s.repo.ReplaceItems(ctx, order, items); err != nil {
			s.releaseStock(ctx, items)
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
			return nil, errorbank.Internal("failed to replace order items", errorbank.WithCause(err))
		}
		// Stock held by the replaced lines goes back to the shelf.
		s.releaseStock(ctx, previous)
	} else {
		if err := s.repo.Save(ctx, order); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
			return nil, errorbank.Internal("failed to update order", errorbank.WithCause(err))
		}
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", id), zap.Error(err))
	}

	return order, nil
}

// Remove soft-deletes an order; the row survives for audit but disappears
// from every read path.
func (s *Service) Remove(ctx context.Context, id string) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Remove", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return errorbank.NotFound(fmt.Sprintf("order %s not found", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete order", errorbank.WithCause(err))
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, CacheKey(id)); err != nil {
			s.logger.Warn("orders cache invalidation failed", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// publishStatusChanged emits the event fire-and-forget: delivery failures are
// logged, never surfaced to the caller.
func (s *Service) publishStatusChanged(ctx context.Context, orderID string, previous *entity.OrderStatus, next entity.OrderStatus) {
	if s.publisher == nil {
		return
	}
	evt := event.OrderStatusChanged{
		OrderID:        orderID,
		PreviousStatus: previous,
		NewStatus:      next,
		OccurredAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("marshal status changed event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, s.statusTopic, []byte(orderID), payload); err != nil {
		s.logger.Error("publish status changed event", zap.String("order_id", orderID), zap.Error(err))
	}
}

// CacheKey is the read-through cache key for an order. Exported so the
// status engine can invalidate entries its transitions make stale.
func CacheKey(id string) string {
	return "orders:" + id
}

func (s *Service) getFromCache(ctx context.Context, id string) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, CacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if s.cache == nil || order == nil {
		return nil
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, CacheKey(order.ID), bytes, s.cacheTTL)
}
