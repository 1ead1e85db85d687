package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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
	ordersvc "github.com/farmgate-io/farmgate/internal/service/order"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/farmgate-io/farmgate/service/status")

// allowedTransitions encodes the order state machine. Completed and canceled
// are terminal; there is no path out of either, and no self-transition.
var allowedTransitions = map[entity.OrderStatus][]entity.OrderStatus{
	entity.StatusPending:   {entity.StatusCompleted, entity.StatusCanceled},
	entity.StatusCompleted: {},
	entity.StatusCanceled:  {},
}

// IsValidTransition reports whether current may move to next.
func IsValidTransition(current, next entity.OrderStatus) bool {
	for _, allowed := range allowedTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Store is the order persistence surface the engine needs.
type Store interface {
	GetByID(ctx context.Context, id string, includeItems bool) (*entity.Order, error)
	Save(ctx context.Context, order *entity.Order) error
}

// Publisher is the narrow publish capability handed to the engine for
// status-changed events.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value []byte) error
}

// Service enforces legal order-status transitions and records history.
type Service struct {
	repo        Store
	cache       cache.Store
	logger      *zap.Logger
	publisher   Publisher
	statusTopic string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *orderrepo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  Publisher
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:        p.Repository,
		cache:       p.Cache,
		logger:      p.Logger,
		publisher:   p.Publisher,
		statusTopic: p.Config.Messaging.Kafka.StatusTopic,
	}
}

// UpdateOrderStatus moves an order to newStatus if the state machine allows
// it, appending a history entry and persisting before the status-changed
// event is published. A rejected transition leaves the order untouched.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, newStatus entity.OrderStatus) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "StatusService.UpdateOrderStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.new_status", string(newStatus)),
	))
	defer span.End()

	if !newStatus.Valid() {
		return nil, errorbank.BadRequest(fmt.Sprintf("unknown order status %q", newStatus))
	}

	order, err := s.repo.GetByID(ctx, orderID, false)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound(fmt.Sprintf("order %s not found", orderID))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	previous := order.Status
	if !IsValidTransition(previous, newStatus) {
		span.SetStatus(codes.Error, "invalid transition")
		return nil, errorbank.InvalidTransition(
			fmt.Sprintf("invalid status transition: %s -> %s", previous, newStatus),
			errorbank.WithDetail("current", string(previous)),
			errorbank.WithDetail("requested", string(newStatus)),
		)
	}

	s.logger.Info("updating order status",
		zap.String("order_id", orderID),
		zap.String("from", string(previous)),
		zap.String("to", string(newStatus)),
	)

	order.Status = newStatus
	order.StatusHistory = append(order.StatusHistory, entity.StatusHistoryEntry{
		Status:    newStatus,
		Timestamp: time.Now().UTC(),
	})

	if err := s.repo.Save(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to persist status change", errorbank.WithCause(err))
	}

	s.invalidateCachedOrder(ctx, orderID)
	s.publishStatusChanged(ctx, orderID, previous, newStatus)
	return order, nil
}

// invalidateCachedOrder drops the read-through entry the order service keeps
// per order, so a Get right after a transition sees the new status instead of
// the cached pre-transition copy.
func (s *Service) invalidateCachedOrder(ctx context.Context, orderID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, ordersvc.CacheKey(orderID)); err != nil {
		s.logger.Warn("orders cache invalidation failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

// GetOrderStatusHistory returns the order's recorded transitions, oldest
// first. The slice is empty, never nil, when nothing was recorded.
func (s *Service) GetOrderStatusHistory(ctx context.Context, orderID string) ([]entity.StatusHistoryEntry, error) {
	ctx, span := serviceTracer.Start(ctx, "StatusService.GetOrderStatusHistory", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	order, err := s.repo.GetByID(ctx, orderID, false)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound(fmt.Sprintf("order %s not found", orderID))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	return order.History(), nil
}

// publishStatusChanged emits the event fire-and-forget; the engine never
// waits on or retries delivery.
func (s *Service) publishStatusChanged(ctx context.Context, orderID string, previous, next entity.OrderStatus) {
	if s.publisher == nil {
		return
	}
	prev := previous
	evt := event.OrderStatusChanged{
		OrderID:        orderID,
		PreviousStatus: &prev,
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
