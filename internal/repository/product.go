package repository

import (
	"context"
	"errors"
	"fmt"

	"order-bridge/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	Seed(ctx context.Context) error
	FindByID(ctx context.Context, productID string) (*model.Product, error)
	DecreaseStock(ctx context.Context, productID string) (bool, error)
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{
		db: db,
	}
}

func (r *productRepoImpl) Seed(ctx context.Context) error {
	products := []model.Product{
		{ID: "vip_30d", Name: "VIP 30 dias", Price: decimal.RequireFromString("19.90"), Stock: model.UnlimitedStock},
		{ID: "coins_1000", Name: "1000 Coins", Price: decimal.RequireFromString("9.90"), Stock: model.UnlimitedStock},
		{ID: "founder_pack", Name: "Founder Pack", Price: decimal.RequireFromString("49.90"), Stock: 10},
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&products).Error
}

func (r *productRepoImpl) FindByID(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, model.ErrNotFound)
		}
		return nil, err
	}

	return &product, nil
}

// DecreaseStock takes one unit when stock is positive. Unlimited (-1) and
// exhausted (0) products are left untouched and report false.
func (r *productRepoImpl) DecreaseStock(ctx context.Context, productID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ? AND stock > 0", productID).
		UpdateColumn("stock", gorm.Expr("stock - 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
