package repo

import (
	"context"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/online_kart/internal/models"
)

// LockProducts locks the given product rows FOR UPDATE and returns them in ascending id order.
// Every writer of products.stock locks in this order, which keeps concurrent checkouts from
// deadlocking on each other.
func (r *GormRepo) LockProducts(ctx context.Context, ids []uint) ([]models.Product, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	if len(sorted) == 0 {
		return nil, nil
	}

	var products []models.Product
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Reserve takes quantity units off the product's stock. The decrement is guarded in SQL so stock
// cannot drop below zero even without a prior lock; ErrStockShortage means no row qualified.
func (r *GormRepo) Reserve(ctx context.Context, productID uint, quantity uint) error {
	res := r.DB.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStockShortage
	}
	return nil
}

func (r *GormRepo) Restock(ctx context.Context, productID uint, delta uint) (*models.Product, error) {
	var product models.Product
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productID).Error; err != nil {
			return err
		}
		if err := tx.Model(&product).Update("stock", gorm.Expr("stock + ?", delta)).Error; err != nil {
			return err
		}
		return tx.First(&product, productID).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}
