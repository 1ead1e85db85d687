package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/cache"
	"github.com/farmgate-io/farmgate/internal/config"
	orderrepo "github.com/farmgate-io/farmgate/internal/repository/order"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/farmgate-io/farmgate/service/report")

var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// SalesReport totals order revenue inside a date range.
type SalesReport struct {
	StartDate  string          `json:"start_date"`
	EndDate    string          `json:"end_date"`
	TotalSales decimal.Decimal `json:"total_sales"`
}

// OrderMetrics counts and averages orders inside a date range.
type OrderMetrics struct {
	StartDate          string          `json:"start_date"`
	EndDate            string          `json:"end_date"`
	TotalOrders        int64           `json:"total_orders"`
	AverageOrderAmount decimal.Decimal `json:"average_order_amount"`
}

// Aggregator is the order store surface reports run against.
type Aggregator interface {
	AggregateByDateRange(ctx context.Context, start, end time.Time) (*orderrepo.Aggregate, error)
}

// Service computes cached sales and order metrics reports.
type Service struct {
	repo   Aggregator
	cache  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *orderrepo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:   p.Repository,
		cache:  p.Cache,
		ttl:    p.Config.Cache.ReportTTL,
		logger: p.Logger,
	}
}

// GetSalesReport sums order totals created in [startDate, endDate]. Results
// are cached per range; cache failures never fail the request.
func (s *Service) GetSalesReport(ctx context.Context, startDate, endDate string) (*SalesReport, error) {
	ctx, span := serviceTracer.Start(ctx, "ReportService.GetSalesReport", trace.WithAttributes(
		attribute.String("report.start", startDate),
		attribute.String("report.end", endDate),
	))
	defer span.End()

	start, end, err := parseRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("salesReport:%s:%s", startDate, endDate)
	var cached SalesReport
	if s.readCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	agg, err := s.repo.AggregateByDateRange(ctx, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation failed")
		return nil, errorbank.Internal("failed to compute sales report", errorbank.WithCause(err))
	}

	result := &SalesReport{
		StartDate:  startDate,
		EndDate:    endDate,
		TotalSales: nullDecimal(agg.TotalSales),
	}
	s.writeCache(ctx, cacheKey, result)
	return result, nil
}

// GetOrderMetrics counts orders and averages totals created in
// [startDate, endDate], with the same caching policy as GetSalesReport.
func (s *Service) GetOrderMetrics(ctx context.Context, startDate, endDate string) (*OrderMetrics, error) {
	ctx, span := serviceTracer.Start(ctx, "ReportService.GetOrderMetrics", trace.WithAttributes(
		attribute.String("report.start", startDate),
		attribute.String("report.end", endDate),
	))
	defer span.End()

	start, end, err := parseRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("orderMetrics:%s:%s", startDate, endDate)
	var cached OrderMetrics
	if s.readCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	agg, err := s.repo.AggregateByDateRange(ctx, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation failed")
		return nil, errorbank.Internal("failed to compute order metrics", errorbank.WithCause(err))
	}

	result := &OrderMetrics{
		StartDate:          startDate,
		EndDate:            endDate,
		TotalOrders:        agg.TotalOrders,
		AverageOrderAmount: nullDecimal(agg.AverageOrder),
	}
	s.writeCache(ctx, cacheKey, result)
	return result, nil
}

// readCache reports whether dest was populated from cache. All cache errors
// degrade to a miss.
func (s *Service) readCache(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.logger.Warn("report cache decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Service) writeCache(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("report cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func parseRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := parseDate(startDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(endDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errorbank.BadRequest("end date precedes start date")
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	if !dateFormat.MatchString(s) {
		return time.Time{}, errorbank.BadRequest("invalid date format, use YYYY-MM-DD")
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errorbank.BadRequest("invalid date format, use YYYY-MM-DD", errorbank.WithCause(err))
	}
	return t, nil
}

func nullDecimal(v sql.NullString) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.Zero
	}
	return d
}
