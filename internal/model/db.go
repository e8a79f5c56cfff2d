package model

import (
	"github.com/shopspring/decimal"
)

// UnlimitedStock marks a product that never runs out.
const UnlimitedStock = -1

type Product struct {
	ID    string          `gorm:"primaryKey;size:64;not null"` // product sku
	Name  string          `gorm:"size:255;not null"`
	Price decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Stock int             `gorm:"not null;default:-1"` // -1 = unlimited
}

func (p *Product) InStock() bool {
	return p.Stock == UnlimitedStock || p.Stock > 0
}
