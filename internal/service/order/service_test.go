package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/entity"
	orderrepo "github.com/farmgate-io/farmgate/internal/repository/order"
	productrepo "github.com/farmgate-io/farmgate/internal/repository/product"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

type fakeStore struct {
	orders   map[string]*entity.Order
	saved    []*entity.Order
	replaced [][]*entity.OrderItem
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[string]*entity.Order{}}
}

func (f *fakeStore) Create(_ context.Context, order *entity.Order) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string, _ bool) (*entity.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, orderrepo.ErrNotFound
	}
	return order, nil
}

func (f *fakeStore) List(context.Context, bool) ([]*entity.Order, error) {
	out := make([]*entity.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeStore) Save(_ context.Context, order *entity.Order) error {
	if _, ok := f.orders[order.ID]; !ok {
		return orderrepo.ErrNotFound
	}
	f.orders[order.ID] = order
	f.saved = append(f.saved, order)
	return nil
}

func (f *fakeStore) ReplaceItems(_ context.Context, order *entity.Order, items []*entity.OrderItem) error {
	order.Items = items
	f.orders[order.ID] = order
	f.replaced = append(f.replaced, items)
	return nil
}

func (f *fakeStore) SoftDelete(_ context.Context, id string) error {
	if _, ok := f.orders[id]; !ok {
		return orderrepo.ErrNotFound
	}
	delete(f.orders, id)
	return nil
}

type fakeInventory struct {
	products map[string]*entity.Product
}

func (f *fakeInventory) FindByID(_ context.Context, id string) (*entity.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, productrepo.ErrNotFound
	}
	return product, nil
}

func (f *fakeInventory) DecrementStock(_ context.Context, id string, quantity int) error {
	product, ok := f.products[id]
	if !ok {
		return productrepo.ErrNotFound
	}
	if product.StockQuantity < quantity {
		return productrepo.ErrInsufficientStock
	}
	product.StockQuantity -= quantity
	return nil
}

func (f *fakeInventory) RestoreStock(_ context.Context, id string, quantity int) error {
	product, ok := f.products[id]
	if !ok {
		return productrepo.ErrNotFound
	}
	product.StockQuantity += quantity
	return nil
}

type publishedEvent struct {
	topic string
	key   []byte
	value []byte
}

type fakePublisher struct {
	events []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	f.events = append(f.events, publishedEvent{topic: topic, key: key, value: value})
	return nil
}

func applesAndEggs() *fakeInventory {
	return &fakeInventory{products: map[string]*entity.Product{
		"p-apples": {
			ID:            "p-apples",
			Name:          "Organic Apples",
			Price:         decimal.RequireFromString("3.49"),
			StockQuantity: 10,
			Unit:          "kg",
		},
		"p-eggs": {
			ID:            "p-eggs",
			Name:          "Free-Range Eggs",
			Price:         decimal.RequireFromString("5.99"),
			StockQuantity: 2,
			Unit:          "dozen",
		},
	}}
}

func TestCreateComputesExactTotals(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	svc := newForTest(store, applesAndEggs(), nil, publisher, zap.NewNop())

	before := time.Now().UTC()
	order, err := svc.Create(context.Background(), CreateInput{
		UserID: 7,
		Items: []ItemInput{
			{ProductID: "p-apples", Quantity: 2},
			{ProductID: "p-eggs", Quantity: 1},
		},
	})
	require.NoError(t, err)

	// 3.49*2 + 5.99 = 12.97, computed without float drift.
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("12.97")),
		"got total %s", order.TotalAmount)
	require.Len(t, order.Items, 2)
	assert.True(t, order.Items[0].TotalPrice.Equal(decimal.RequireFromString("6.98")))

	assert.Equal(t, entity.StatusPending, order.Status)
	assert.Empty(t, order.StatusHistory)
	assert.NotNil(t, order.StatusHistory)

	deadline := order.PaymentDeadline
	assert.WithinDuration(t, before.Add(5*time.Minute), deadline, 2*time.Second)

	// Item snapshots freeze the product at order time.
	assert.Equal(t, "Organic Apples", order.Items[0].ProductSnapshot.Name)
	assert.Equal(t, "kg", order.Items[0].ProductSnapshot.Unit)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "orders.status", publisher.events[0].topic)
	assert.Equal(t, order.ID, string(publisher.events[0].key))
}

func TestCreateRejectsEmptyItems(t *testing.T) {
	svc := newForTest(newFakeStore(), applesAndEggs(), nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateInput{UserID: 1})
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestCreateRejectsNonPositiveQuantity(t *testing.T) {
	svc := newForTest(newFakeStore(), applesAndEggs(), nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateInput{
		UserID: 1,
		Items:  []ItemInput{{ProductID: "p-apples", Quantity: 0}},
	})
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestCreateUnknownProduct(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	svc := newForTest(store, applesAndEggs(), nil, publisher, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateInput{
		UserID: 1,
		Items:  []ItemInput{{ProductID: "p-missing", Quantity: 1}},
	})
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
	assert.Empty(t, store.orders)
	assert.Empty(t, publisher.events)
}

func TestCreateInsufficientStock(t *testing.T) {
	store := newFakeStore()
	svc := newForTest(store, applesAndEggs(), nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateInput{
		UserID: 1,
		Items:  []ItemInput{{ProductID: "p-eggs", Quantity: 5}},
	})
	require.True(t, errorbank.IsKind(err, errorbank.KindInsufficientStock))

	appErr := errorbank.From(err)
	assert.Equal(t, 2, appErr.Details()["available"])
	assert.Equal(t, 5, appErr.Details()["requested"])
	assert.Empty(t, store.orders)
}

func TestGetNotFound(t *testing.T) {
	svc := newForTest(newFakeStore(), applesAndEggs(), nil, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "nope")
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestUpdateReplacesItemSetAndRecomputesTotal(t *testing.T) {
	store := newFakeStore()
	svc := newForTest(store, applesAndEggs(), nil, &fakePublisher{}, zap.NewNop())

	order, err := svc.Create(context.Background(), CreateInput{
		UserID: 1,
		Items:  []ItemInput{{ProductID: "p-apples", Quantity: 1}},
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), order.ID, UpdateInput{
		Items: []ItemInput{{ProductID: "p-eggs", Quantity: 2}},
	})
	require.NoError(t, err)

	assert.True(t, updated.TotalAmount.Equal(decimal.RequireFromString("11.98")),
		"got total %s", updated.TotalAmount)
	require.Len(t, store.replaced, 1)
	require.Len(t, store.replaced[0], 1)
	assert.Equal(t, "p-eggs", store.replaced[0][0].ProductID)
}

func TestUpdatePatchesOnlyProvidedFields(t *testing.T) {
	store := newFakeStore()
	svc := newForTest(store, applesAndEggs(), nil, &fakePublisher{}, zap.NewNop())

	order, err := svc.Create(context.Background(), CreateInput{
		UserID:     1,
		Items:      []ItemInput{{ProductID: "p-apples", Quantity: 1}},
		PaymentRef: "tx-original",
	})
	require.NoError(t, err)

	ref := "tx-new"
	updated, err := svc.Update(context.Background(), order.ID, UpdateInput{PaymentRef: &ref})
	require.NoError(t, err)

	assert.Equal(t, "tx-new", updated.TransactionRef)
	assert.True(t, updated.TotalAmount.Equal(order.TotalAmount))
	assert.Empty(t, store.replaced)
}

func TestRemoveNotFound(t *testing.T) {
	svc := newForTest(newFakeStore(), applesAndEggs(), nil, nil, zap.NewNop())

	err := svc.Remove(context.Background(), "nope")
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestCreateRepositoryFailure(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("connection refused")
	publisher := &fakePublisher{}
	inventory := applesAndEggs()
	svc := newForTest(store, inventory, nil, publisher, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateInput{
		UserID: 1,
		Items:  []ItemInput{{ProductID: "p-apples", Quantity: 3}},
	})
	require.True(t, errorbank.IsKind(err, errorbank.KindInternal))
	assert.Empty(t, publisher.events, "no event on failed persistence")

	// Reserved stock must come back when persistence fails.
	assert.Equal(t, 10, inventory.products["p-apples"].StockQuantity)
}

func TestCreateReservesStock(t *testing.T) {
	inventory := applesAndEggs()
	svc := newForTest(newFakeStore(), inventory, nil, &fakePublisher{}, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateInput{
		UserID: 1,
		Items: []ItemInput{
			{ProductID: "p-apples", Quantity: 4},
			{ProductID: "p-eggs", Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 6, inventory.products["p-apples"].StockQuantity)
	assert.Equal(t, 1, inventory.products["p-eggs"].StockQuantity)
}
