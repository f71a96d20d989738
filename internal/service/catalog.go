package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/Skotchmaster/online_kart/internal/models"
	"github.com/Skotchmaster/online_kart/internal/mykafka"
	"github.com/Skotchmaster/online_kart/internal/repo"
	"github.com/Skotchmaster/online_kart/internal/transport"
	"github.com/Skotchmaster/online_kart/pkg/logging"
)

// ProductIndex is the full-text side of the catalog. Nil means search runs on the database.
type ProductIndex interface {
	StockIndex
	Search(ctx context.Context, query string, from, size int) (int64, []uint, error)
	IndexProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, productID uint) error
}

type CatalogService struct {
	Repo   *repo.GormRepo
	Index  ProductIndex
	Events mykafka.Publisher
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.Repo.ListCategories(ctx)
}

func (s *CatalogService) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name, err := categoryName(name)
	if err != nil {
		return nil, err
	}

	cat := &models.Category{Name: name}
	if err := s.Repo.CreateCategory(ctx, cat); err != nil {
		if errors.Is(err, repo.ErrCategoryExists) {
			return nil, fmt.Errorf("category %q: %w", name, ErrConflict)
		}
		return nil, err
	}
	return cat, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id uint, name string) (*models.Category, error) {
	name, err := categoryName(name)
	if err != nil {
		return nil, err
	}
	cat, err := s.Repo.UpdateCategory(ctx, id, name)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
		case errors.Is(err, repo.ErrCategoryExists):
			return nil, fmt.Errorf("category %q: %w", name, ErrConflict)
		}
		return nil, err
	}
	return cat, nil
}

// DeleteCategory leaves the category's products in place without a category.
func (s *CatalogService) DeleteCategory(ctx context.Context, id uint) error {
	if err := s.Repo.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("category %d: %w", id, ErrNotFound)
		}
		return err
	}
	return nil
}

func categoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 120 {
		return "", fmt.Errorf("category name must be 1-120 characters: %w", ErrValidation)
	}
	if repo.Slugify(name) == "" {
		return "", fmt.Errorf("category name has no usable characters: %w", ErrValidation)
	}
	return name, nil
}

func (s *CatalogService) ListProducts(ctx context.Context, categorySlug, query string, offset, limit int) (int64, []models.Product, error) {
	return s.Repo.ListProducts(ctx, repo.ProductFilter{
		CategorySlug: strings.TrimSpace(categorySlug),
		Query:        strings.TrimSpace(query),
		ActiveOnly:   true,
	}, offset, limit)
}

// GetProduct hides inactive products the same way as missing ones.
func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return p, nil
}

// Search asks the index first and falls back to a title match in the database when no index is
// configured or the index call fails.
func (s *CatalogService) Search(ctx context.Context, query string, offset, limit int) (int64, []models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, nil, fmt.Errorf("query is required: %w", ErrValidation)
	}

	if s.Index != nil {
		total, ids, err := s.Index.Search(ctx, query, offset, limit)
		if err == nil {
			products, err := s.Repo.ProductsByIDs(ctx, ids)
			if err != nil {
				return 0, nil, err
			}
			items := make([]models.Product, 0, len(ids))
			for _, id := range ids {
				if p, ok := products[id]; ok && p.IsActive {
					items = append(items, p)
				}
			}
			return total, items, nil
		}
		logging.FromContext(ctx).Warn("search_index_failed", "svc", "catalog.search", "error", err)
	}

	return s.ListProducts(ctx, "", query, offset, limit)
}

func (s *CatalogService) CreateProduct(ctx context.Context, req transport.CreateProductRequest) (*models.Product, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || utf8.RuneCountInString(title) > 200 {
		return nil, fmt.Errorf("title must be 1-200 characters: %w", ErrValidation)
	}
	if repo.Slugify(title) == "" {
		return nil, fmt.Errorf("title has no usable characters: %w", ErrValidation)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("price cannot be negative: %w", ErrValidation)
	}
	if req.Stock < 0 {
		return nil, fmt.Errorf("stock cannot be negative: %w", ErrValidation)
	}
	if err := s.checkCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	prod := &models.Product{
		Title:       title,
		Description: req.Description,
		Price:       req.Price.Round(2),
		Stock:       req.Stock,
		IsActive:    active,
		CategoryID:  req.CategoryID,
	}
	if err := s.Repo.CreateProduct(ctx, prod); err != nil {
		return nil, err
	}

	s.productChanged(ctx, mykafka.EventProductCreated, *prod)
	return prod, nil
}

func (s *CatalogService) PatchProduct(ctx context.Context, id uint, req transport.PatchProductRequest) (*models.Product, error) {
	fields := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || utf8.RuneCountInString(title) > 200 {
			return nil, fmt.Errorf("title must be 1-200 characters: %w", ErrValidation)
		}
		fields["title"] = title
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, fmt.Errorf("price cannot be negative: %w", ErrValidation)
		}
		fields["price"] = req.Price.Round(2)
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}
	if req.CategoryID != nil {
		if err := s.checkCategory(ctx, req.CategoryID); err != nil {
			return nil, err
		}
		fields["category_id"] = *req.CategoryID
	}

	prod, err := s.Repo.UpdateProduct(ctx, id, fields)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return nil, err
	}

	s.productChanged(ctx, mykafka.EventProductUpdated, *prod)
	return prod, nil
}

// ReplaceProduct overwrites every editable field. Stock is untouched.
func (s *CatalogService) ReplaceProduct(ctx context.Context, id uint, req transport.ReplaceProductRequest) (*models.Product, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || utf8.RuneCountInString(title) > 200 {
		return nil, fmt.Errorf("title must be 1-200 characters: %w", ErrValidation)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("price cannot be negative: %w", ErrValidation)
	}
	if err := s.checkCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	fields := map[string]any{
		"title":       title,
		"description": req.Description,
		"price":       req.Price.Round(2),
		"is_active":   active,
		"category_id": req.CategoryID,
	}

	prod, err := s.Repo.UpdateProduct(ctx, id, fields)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return nil, err
	}

	s.productChanged(ctx, mykafka.EventProductUpdated, *prod)
	return prod, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id uint) error {
	if err := s.Repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return err
	}

	publish(ctx, s.Events, mykafka.TopicProducts, strconv.FormatUint(uint64(id), 10), map[string]any{
		"type":       mykafka.EventProductDeleted,
		"product_id": id,
	})
	if s.Index != nil {
		if err := s.Index.DeleteProduct(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("search_delete_failed", "product_id", id, "error", err)
		}
	}
	return nil
}

func (s *CatalogService) Restock(ctx context.Context, id uint, quantity uint) (*models.Product, error) {
	if quantity == 0 {
		return nil, fmt.Errorf("quantity must be at least 1: %w", ErrValidation)
	}
	prod, err := s.Repo.Restock(ctx, id, quantity)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return nil, err
	}

	publish(ctx, s.Events, mykafka.TopicProducts, strconv.FormatUint(uint64(prod.ID), 10), map[string]any{
		"type":       mykafka.EventProductRestocked,
		"product_id": prod.ID,
		"added":      quantity,
		"stock":      prod.Stock,
	})
	if s.Index != nil {
		if err := s.Index.UpdateStock(ctx, prod.ID, prod.Stock); err != nil {
			logging.FromContext(ctx).Warn("search_stock_sync_failed", "product_id", prod.ID, "error", err)
		}
	}
	return prod, nil
}

func (s *CatalogService) checkCategory(ctx context.Context, id *uint) error {
	if id == nil {
		return nil
	}
	ok, err := s.Repo.CategoryExists(ctx, *id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("category %d does not exist: %w", *id, ErrValidation)
	}
	return nil
}

func (s *CatalogService) productChanged(ctx context.Context, eventType string, p models.Product) {
	publish(ctx, s.Events, mykafka.TopicProducts, strconv.FormatUint(uint64(p.ID), 10), map[string]any{
		"type":       eventType,
		"product_id": p.ID,
		"title":      p.Title,
		"price":      p.Price.StringFixed(2),
		"stock":      p.Stock,
		"is_active":  p.IsActive,
	})
	if s.Index != nil {
		if err := s.Index.IndexProduct(ctx, p); err != nil {
			logging.FromContext(ctx).Warn("search_index_failed", "product_id", p.ID, "error", err)
		}
	}
}
