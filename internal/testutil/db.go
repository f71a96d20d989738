// Package testutil builds throwaway SQLite databases for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/online_kart/internal/models"
	"github.com/Skotchmaster/online_kart/internal/repo"
	"github.com/Skotchmaster/online_kart/pkg/db"
)

func InitTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "kart_test.db") +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	gdb, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	require.NoError(t, repo.Migrate(gdb))
	return gdb
}

func NewRepo(t *testing.T) *repo.GormRepo {
	t.Helper()
	return &repo.GormRepo{DB: InitTestDB(t)}
}

func SeedProduct(t *testing.T, gdb *gorm.DB, title, price string, stock int64) models.Product {
	t.Helper()
	p := models.Product{
		Title:    title,
		Slug:     repo.Slugify(title) + "-" + uuid.NewString()[:8],
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
	require.NoError(t, gdb.Create(&p).Error)
	return p
}

func SeedUser(t *testing.T, gdb *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, gdb.Create(&u).Error)
	return u
}

func SeedCartLine(t *testing.T, gdb *gorm.DB, userID uuid.UUID, productID, qty uint) {
	t.Helper()
	require.NoError(t, gdb.Create(&models.CartItem{UserID: userID, ProductID: productID, Quantity: qty}).Error)
}

func Stock(t *testing.T, gdb *gorm.DB, productID uint) int64 {
	t.Helper()
	var p models.Product
	require.NoError(t, gdb.Select("stock").First(&p, productID).Error)
	return p.Stock
}

func Count(t *testing.T, gdb *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(model).Count(&n).Error)
	return n
}
