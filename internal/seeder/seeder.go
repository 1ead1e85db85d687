package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/database"
	"github.com/farmgate-io/farmgate/internal/entity"
)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Run seeds the catalog and a few example orders.
func (s *Seeder) Run(ctx context.Context) error {
	products, err := s.Products(ctx)
	if err != nil {
		return err
	}
	return s.Orders(ctx, products)
}

// Products seeds example catalog entries if they are missing.
func (s *Seeder) Products(ctx context.Context) ([]*entity.Product, error) {
	now := time.Now().UTC()
	samples := []*entity.Product{
		{
			ID:            "11111111-1111-1111-1111-111111111111",
			Name:          "Organic Apples",
			Description:   "Crisp apples from the orchard",
			Price:         decimal.NewFromFloat(3.49),
			StockQuantity: 120,
			Unit:          "kg",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:            "22222222-2222-2222-2222-222222222222",
			Name:          "Free-Range Eggs",
			Description:   "Dozen free-range eggs",
			Price:         decimal.NewFromFloat(5.99),
			StockQuantity: 60,
			Unit:          "dozen",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:            "33333333-3333-3333-3333-333333333333",
			Name:          "Raw Honey",
			Description:   "500g jar of raw wildflower honey",
			Price:         decimal.NewFromFloat(8.50),
			StockQuantity: 40,
			Unit:          "jar",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}

	for _, sample := range samples {
		product := sample
		_, err := s.db.NewInsert().Model(product).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return nil, err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded products", zap.Int("count", len(samples)))
	}
	return samples, nil
}

// Orders seeds example orders against the given products if they are missing.
func (s *Seeder) Orders(ctx context.Context, products []*entity.Product) error {
	if len(products) == 0 {
		return nil
	}

	now := time.Now().UTC()
	product := products[0]
	quantity := 2

	order := &entity.Order{
		ID:              "aaaaaaaa-0000-0000-0000-000000000001",
		UserID:          1,
		TotalAmount:     product.Price.Mul(decimal.NewFromInt(int64(quantity))),
		Status:          entity.StatusPending,
		PaymentDeadline: now.Add(5 * time.Minute),
		StatusHistory:   []entity.StatusHistoryEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	item := &entity.OrderItem{
		ID:              uuid.NewString(),
		OrderID:         order.ID,
		ProductID:       product.ID,
		Quantity:        quantity,
		PricePerUnit:    product.Price,
		TotalPrice:      order.TotalAmount,
		ProductSnapshot: product.Snapshot(),
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().Model(order).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		if rows, err := res.RowsAffected(); err == nil && rows == 0 {
			// Order already seeded; skip its items too.
			return nil
		}
		_, err = tx.NewInsert().Model(item).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("count", 1))
	}
	return nil
}
