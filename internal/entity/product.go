package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Product is a catalog entry offered by a farmer.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID            string          `bun:"id,pk"`
	Name          string          `bun:"name,notnull"`
	Description   string          `bun:"description"`
	Price         decimal.Decimal `bun:"price,notnull,type:decimal(10,2)"`
	StockQuantity int             `bun:"stock_quantity,notnull"`
	Unit          string          `bun:"unit"`
	Image         string          `bun:"image"`
	CategoryID    string          `bun:"category_id"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero"`
	DeletedAt     time.Time       `bun:"deleted_at,soft_delete,nullzero"`
}

// Snapshot freezes the product's descriptive fields for an order item.
func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Unit:        p.Unit,
		Image:       p.Image,
	}
}

// Category groups products in the catalog.
type Category struct {
	bun.BaseModel `bun:"table:categories"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero"`
}
