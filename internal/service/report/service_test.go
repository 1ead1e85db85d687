package report

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/cache"
	orderrepo "github.com/farmgate-io/farmgate/internal/repository/order"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

type fakeAggregator struct {
	agg   *orderrepo.Aggregate
	err   error
	calls int
}

func (f *fakeAggregator) AggregateByDateRange(context.Context, time.Time, time.Time) (*orderrepo.Aggregate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.agg, nil
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newReportService(agg *fakeAggregator, store cache.Store) *Service {
	return &Service{
		repo:   agg,
		cache:  store,
		ttl:    time.Hour,
		logger: zap.NewNop(),
	}
}

func TestGetSalesReport(t *testing.T) {
	agg := &fakeAggregator{agg: &orderrepo.Aggregate{
		TotalSales:   sql.NullString{String: "149.50", Valid: true},
		TotalOrders:  12,
		AverageOrder: sql.NullString{String: "12.46", Valid: true},
	}}
	svc := newReportService(agg, newMemStore())

	report, err := svc.GetSalesReport(context.Background(), "2025-06-01", "2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", report.StartDate)
	assert.Equal(t, "149.5", report.TotalSales.String())
}

func TestGetSalesReportCachesResult(t *testing.T) {
	agg := &fakeAggregator{agg: &orderrepo.Aggregate{
		TotalSales: sql.NullString{String: "10.00", Valid: true},
	}}
	svc := newReportService(agg, newMemStore())

	_, err := svc.GetSalesReport(context.Background(), "2025-06-01", "2025-06-30")
	require.NoError(t, err)
	_, err = svc.GetSalesReport(context.Background(), "2025-06-01", "2025-06-30")
	require.NoError(t, err)

	assert.Equal(t, 1, agg.calls, "second read must come from cache")
}

func TestGetSalesReportCacheFailureIsNonFatal(t *testing.T) {
	agg := &fakeAggregator{agg: &orderrepo.Aggregate{
		TotalSales: sql.NullString{String: "10.00", Valid: true},
	}}
	store := newMemStore()
	store.err = errors.New("redis down")
	svc := newReportService(agg, store)

	report, err := svc.GetSalesReport(context.Background(), "2025-06-01", "2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, "10", report.TotalSales.String())
}

func TestGetSalesReportEmptyRange(t *testing.T) {
	agg := &fakeAggregator{agg: &orderrepo.Aggregate{}}
	svc := newReportService(agg, newMemStore())

	report, err := svc.GetSalesReport(context.Background(), "2025-06-01", "2025-06-30")
	require.NoError(t, err)
	assert.True(t, report.TotalSales.IsZero())
}

func TestGetOrderMetrics(t *testing.T) {
	agg := &fakeAggregator{agg: &orderrepo.Aggregate{
		TotalOrders:  3,
		AverageOrder: sql.NullString{String: "7.25", Valid: true},
	}}
	svc := newReportService(agg, newMemStore())

	metrics, err := svc.GetOrderMetrics(context.Background(), "2025-06-01", "2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, int64(3), metrics.TotalOrders)
	assert.Equal(t, "7.25", metrics.AverageOrderAmount.String())
}

func TestDateValidation(t *testing.T) {
	svc := newReportService(&fakeAggregator{}, newMemStore())

	cases := []struct {
		name  string
		start string
		end   string
	}{
		{"bad start format", "06-01-2025", "2025-06-30"},
		{"bad end format", "2025-06-01", "June 30"},
		{"empty", "", ""},
		{"end before start", "2025-06-30", "2025-06-01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GetSalesReport(context.Background(), tc.start, tc.end)
			assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
		})
	}
}

func TestAggregationFailure(t *testing.T) {
	svc := newReportService(&fakeAggregator{err: errors.New("db gone")}, newMemStore())

	_, err := svc.GetOrderMetrics(context.Background(), "2025-06-01", "2025-06-30")
	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))
}
