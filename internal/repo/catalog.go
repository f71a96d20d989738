package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"github.com/Skotchmaster/online_kart/internal/models"
)

var ErrCategoryExists = errors.New("category already exists")

type ProductFilter struct {
	CategorySlug string
	Query        string
	ActiveOnly   bool
}

func (r *GormRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := r.DB.WithContext(ctx).Order("name ASC").Find(&cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}

func (r *GormRepo) CreateCategory(ctx context.Context, cat *models.Category) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Category{}).Where("name = ?", cat.Name).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrCategoryExists
		}
		slug, err := uniqueSlug(tx, &models.Category{}, cat.Name)
		if err != nil {
			return err
		}
		cat.Slug = slug
		return tx.Create(cat).Error
	})
}

// UpdateCategory renames a category and re-slugs it when the slug changes.
func (r *GormRepo) UpdateCategory(ctx context.Context, id uint, name string) (*models.Category, error) {
	var cat models.Category
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&cat, id).Error; err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.Category{}).Where("name = ? AND id <> ?", name, id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrCategoryExists
		}
		slug := cat.Slug
		if Slugify(name) != cat.Slug {
			var err error
			if slug, err = uniqueSlug(tx, &models.Category{}, name); err != nil {
				return err
			}
		}
		if err := tx.Model(&cat).Updates(map[string]any{"name": name, "slug": slug}).Error; err != nil {
			return err
		}
		return tx.First(&cat, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// DeleteCategory detaches the category's products before removing it.
func (r *GormRepo) DeleteCategory(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Product{}).Where("category_id = ?", id).Update("category_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Category{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *GormRepo) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.DB.WithContext(ctx).Preload("Category").First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *GormRepo) ProductsByIDs(ctx context.Context, ids []uint) (map[uint]models.Product, error) {
	out := make(map[uint]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (r *GormRepo) filteredProducts(ctx context.Context, f ProductFilter) *gorm.DB {
	q := r.DB.WithContext(ctx).Model(&models.Product{})
	if f.ActiveOnly {
		q = q.Where("products.is_active = ?", true)
	}
	if f.CategorySlug != "" {
		q = q.Joins("JOIN categories ON categories.id = products.category_id").
			Where("categories.slug = ?", f.CategorySlug)
	}
	if f.Query != "" {
		q = q.Where("LOWER(products.title) LIKE ?", "%"+strings.ToLower(f.Query)+"%")
	}
	return q
}

func (r *GormRepo) ListProducts(ctx context.Context, f ProductFilter, offset, limit int) (int64, []models.Product, error) {
	var total int64
	if err := r.filteredProducts(ctx, f).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Product, 0, limit)
	if err := r.filteredProducts(ctx, f).
		Preload("Category").
		Order("products.created_at DESC").
		Order("products.id DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) CreateProduct(ctx context.Context, prod *models.Product) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := uniqueSlug(tx, &models.Product{}, prod.Title)
		if err != nil {
			return err
		}
		prod.Slug = slug
		if err := tx.Create(prod).Error; err != nil {
			return err
		}
		if prod.CategoryID == nil {
			return nil
		}
		return tx.Preload("Category").First(prod, prod.ID).Error
	})
}

// UpdateProduct writes the given columns. Stock is not accepted here; it moves only through
// Reserve and Restock.
func (r *GormRepo) UpdateProduct(ctx context.Context, id uint, fields map[string]any) (*models.Product, error) {
	delete(fields, "stock")
	var product models.Product
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			return err
		}
		if len(fields) > 0 {
			if err := tx.Model(&product).Updates(fields).Error; err != nil {
				return err
			}
		}
		return tx.Preload("Category").First(&product, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DeleteProduct removes the product row. Order lines keep their product id and frozen price;
// cart lines pointing at it fail the next checkout as out of stock.
func (r *GormRepo) DeleteProduct(ctx context.Context, id uint) error {
	res := r.DB.WithContext(ctx).Delete(&models.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) CategoryExists(ctx context.Context, id uint) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// uniqueSlug returns slugify(name), or the first free "slug-N" when taken.
func uniqueSlug(tx *gorm.DB, model any, name string) (string, error) {
	base := Slugify(name)
	if base == "" {
		return "", errors.New("empty slug")
	}
	slug := base
	for i := 1; ; i++ {
		var n int64
		if err := tx.Model(model).Where("slug = ?", slug).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case r == '_' || r == '-' || unicode.IsSpace(r):
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
