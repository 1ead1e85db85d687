package status

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/cache"
	"github.com/farmgate-io/farmgate/internal/entity"
	"github.com/farmgate-io/farmgate/internal/event"
	orderrepo "github.com/farmgate-io/farmgate/internal/repository/order"
	ordersvc "github.com/farmgate-io/farmgate/internal/service/order"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

type fakeStore struct {
	orders map[string]*entity.Order
	saves  int
}

func (f *fakeStore) GetByID(_ context.Context, id string, _ bool) (*entity.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, orderrepo.ErrNotFound
	}
	return order, nil
}

func (f *fakeStore) Save(_ context.Context, order *entity.Order) error {
	f.orders[order.ID] = order
	f.saves++
	return nil
}

type fakeCache struct {
	data map[string][]byte
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := f.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

type fakePublisher struct {
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, topic string, _ []byte, value []byte) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, value)
	return nil
}

func newEngine(orders ...*entity.Order) (*Service, *fakeStore, *fakePublisher) {
	store := &fakeStore{orders: map[string]*entity.Order{}}
	for _, o := range orders {
		store.orders[o.ID] = o
	}
	publisher := &fakePublisher{}
	svc := &Service{
		repo:        store,
		logger:      zap.NewNop(),
		publisher:   publisher,
		statusTopic: "orders.status",
	}
	return svc, store, publisher
}

func pendingOrder(id string) *entity.Order {
	return &entity.Order{
		ID:            id,
		UserID:        1,
		Status:        entity.StatusPending,
		StatusHistory: []entity.StatusHistoryEntry{},
	}
}

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from entity.OrderStatus
		to   entity.OrderStatus
		want bool
	}{
		{entity.StatusPending, entity.StatusCompleted, true},
		{entity.StatusPending, entity.StatusCanceled, true},
		{entity.StatusPending, entity.StatusPending, false},
		{entity.StatusCompleted, entity.StatusPending, false},
		{entity.StatusCompleted, entity.StatusCanceled, false},
		{entity.StatusCompleted, entity.StatusCompleted, false},
		{entity.StatusCanceled, entity.StatusPending, false},
		{entity.StatusCanceled, entity.StatusCompleted, false},
		{entity.StatusCanceled, entity.StatusCanceled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsValidTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestUpdateOrderStatusCompletesPendingOrder(t *testing.T) {
	svc, store, publisher := newEngine(pendingOrder("o-1"))

	updated, err := svc.UpdateOrderStatus(context.Background(), "o-1", entity.StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusCompleted, updated.Status)
	require.Len(t, updated.StatusHistory, 1)
	assert.Equal(t, entity.StatusCompleted, updated.StatusHistory[0].Status)
	assert.WithinDuration(t, time.Now().UTC(), updated.StatusHistory[0].Timestamp, 2*time.Second)
	assert.Equal(t, 1, store.saves)

	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, "orders.status", publisher.topics[0])

	var evt event.OrderStatusChanged
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &evt))
	assert.Equal(t, "o-1", evt.OrderID)
	require.NotNil(t, evt.PreviousStatus)
	assert.Equal(t, entity.StatusPending, *evt.PreviousStatus)
	assert.Equal(t, entity.StatusCompleted, evt.NewStatus)
}

func TestUpdateOrderStatusRejectsTerminalTransitions(t *testing.T) {
	completed := pendingOrder("o-done")
	completed.Status = entity.StatusCompleted
	completed.StatusHistory = []entity.StatusHistoryEntry{
		{Status: entity.StatusCompleted, Timestamp: time.Now().UTC()},
	}

	svc, store, publisher := newEngine(completed)

	_, err := svc.UpdateOrderStatus(context.Background(), "o-done", entity.StatusCanceled)
	require.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition))

	appErr := errorbank.From(err)
	assert.Equal(t, "completed", appErr.Details()["current"])
	assert.Equal(t, "canceled", appErr.Details()["requested"])

	// The order is left untouched: no save, no event, history unchanged.
	assert.Equal(t, 0, store.saves)
	assert.Empty(t, publisher.payloads)
	assert.Equal(t, entity.StatusCompleted, store.orders["o-done"].Status)
	assert.Len(t, store.orders["o-done"].StatusHistory, 1)
}

func TestUpdateOrderStatusRejectsSelfTransition(t *testing.T) {
	svc, store, _ := newEngine(pendingOrder("o-1"))

	_, err := svc.UpdateOrderStatus(context.Background(), "o-1", entity.StatusPending)
	assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition))
	assert.Equal(t, 0, store.saves)
}

func TestUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newEngine(pendingOrder("o-1"))

	_, err := svc.UpdateOrderStatus(context.Background(), "o-1", entity.OrderStatus("shipped"))
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestUpdateOrderStatusNotFound(t *testing.T) {
	svc, _, _ := newEngine()

	_, err := svc.UpdateOrderStatus(context.Background(), "missing", entity.StatusCompleted)
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestUpdateOrderStatusInvalidatesCachedOrder(t *testing.T) {
	svc, _, _ := newEngine(pendingOrder("o-1"))

	// A cached copy from a pre-transition read must not outlive the save.
	stale, err := json.Marshal(pendingOrder("o-1"))
	require.NoError(t, err)
	c := &fakeCache{data: map[string][]byte{ordersvc.CacheKey("o-1"): stale}}
	svc.cache = c

	_, err = svc.UpdateOrderStatus(context.Background(), "o-1", entity.StatusCompleted)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), ordersvc.CacheKey("o-1"))
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestRejectedTransitionLeavesCacheEntry(t *testing.T) {
	completed := pendingOrder("o-done")
	completed.Status = entity.StatusCompleted
	svc, _, _ := newEngine(completed)

	cached, err := json.Marshal(completed)
	require.NoError(t, err)
	c := &fakeCache{data: map[string][]byte{ordersvc.CacheKey("o-done"): cached}}
	svc.cache = c

	_, err = svc.UpdateOrderStatus(context.Background(), "o-done", entity.StatusCanceled)
	require.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition))

	_, err = c.Get(context.Background(), ordersvc.CacheKey("o-done"))
	assert.NoError(t, err, "a failed transition must not touch the cache")
}

func TestStatusHistoryIsAppendOnly(t *testing.T) {
	svc, store, _ := newEngine(pendingOrder("o-1"))

	_, err := svc.UpdateOrderStatus(context.Background(), "o-1", entity.StatusCanceled)
	require.NoError(t, err)

	history, err := svc.GetOrderStatusHistory(context.Background(), "o-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entity.StatusCanceled, history[0].Status)
	assert.Equal(t, 1, store.saves)
}

func TestGetOrderStatusHistoryNeverNil(t *testing.T) {
	fresh := pendingOrder("o-1")
	fresh.StatusHistory = nil
	svc, _, _ := newEngine(fresh)

	history, err := svc.GetOrderStatusHistory(context.Background(), "o-1")
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestGetOrderStatusHistoryNotFound(t *testing.T) {
	svc, _, _ := newEngine()

	_, err := svc.GetOrderStatusHistory(context.Background(), "missing")
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}
