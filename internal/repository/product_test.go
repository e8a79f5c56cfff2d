package repository_test

import (
	"context"
	"testing"

	"order-bridge/internal/model"
	"order-bridge/internal/repository"
	"order-bridge/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductRepositoryDecreaseStock(t *testing.T) {
	tests := []struct {
		name        string
		stock       int
		wantChanged bool
		wantStock   int
	}{
		{name: "positive stock: decremented", stock: 2, wantChanged: true, wantStock: 1},
		{name: "last unit: decremented to zero", stock: 1, wantChanged: true, wantStock: 0},
		{name: "zero stock: never negative", stock: 0, wantChanged: false, wantStock: 0},
		{name: "unlimited stock: untouched", stock: model.UnlimitedStock, wantChanged: false, wantStock: model.UnlimitedStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db := testutil.NewDB(t)
			repo := repository.NewProductRepository(db)

			require.NoError(t, db.Create(&model.Product{
				ID:    "p1",
				Name:  "Pack",
				Price: decimal.RequireFromString("10.00"),
				Stock: tt.stock,
			}).Error)

			changed, err := repo.DecreaseStock(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)

			got, err := repo.FindByID(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStock, got.Stock)
		})
	}
}

func TestProductRepositorySeedAndFind(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewProductRepository(testutil.NewDB(t))

	require.NoError(t, repo.Seed(ctx))
	require.NoError(t, repo.Seed(ctx), "seeding twice must not conflict")

	p, err := repo.FindByID(ctx, "vip_30d")
	require.NoError(t, err)
	assert.Equal(t, "VIP 30 dias", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("19.90")))
	assert.Equal(t, model.UnlimitedStock, p.Stock)

	_, err = repo.FindByID(ctx, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}
