package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"

	"github.com/Skotchmaster/online_kart/internal/models"
)

type Index struct {
	ES   *elasticsearch.Client
	Name string
}

type ProductDoc struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Stock       int64  `json:"stock"`
	IsActive    bool   `json:"is_active"`
	CategoryID  *uint  `json:"category_id,omitempty"`
}

func DocFromProduct(p models.Product) ProductDoc {
	return ProductDoc{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		CategoryID:  p.CategoryID,
	}
}

// Search runs a fuzzy multi_match over active products and returns the total hit count and the
// matching product ids in score order.
func (ix *Index) Search(ctx context.Context, query string, from, size int) (int64, []uint, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     query,
						"fields":    []string{"title^2", "description"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]any{"term": map[string]any{"is_active": true}},
			},
		},
		"from":    from,
		"size":    size,
		"_source": []string{"id"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("encode search body: %w", err)
	}

	res, err := ix.ES.Search(
		ix.ES.Search.WithContext(ctx),
		ix.ES.Search.WithIndex(ix.Name),
		ix.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if err := responseError("search", res); err != nil {
		return 0, nil, err
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string     `json:"_id"`
				Source ProductDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]uint, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		if hit.Source.ID != 0 {
			ids = append(ids, hit.Source.ID)
			continue
		}
		if id, err := strconv.ParseUint(hit.ID, 10, 64); err == nil {
			ids = append(ids, uint(id))
		}
	}
	return r.Hits.Total.Value, ids, nil
}

func (ix *Index) IndexProduct(ctx context.Context, p models.Product) error {
	data, err := json.Marshal(DocFromProduct(p))
	if err != nil {
		return err
	}
	res, err := ix.ES.Index(
		ix.Name,
		bytes.NewReader(data),
		ix.ES.Index.WithContext(ctx),
		ix.ES.Index.WithDocumentID(strconv.FormatUint(uint64(p.ID), 10)),
	)
	if err != nil {
		return fmt.Errorf("index product %d: %w", p.ID, err)
	}
	defer res.Body.Close()
	return responseError("index", res)
}

// UpdateStock patches only the stock field of an indexed product.
func (ix *Index) UpdateStock(ctx context.Context, productID uint, stock int64) error {
	data, err := json.Marshal(map[string]any{"doc": map[string]any{"stock": stock}})
	if err != nil {
		return err
	}
	res, err := ix.ES.Update(
		ix.Name,
		strconv.FormatUint(uint64(productID), 10),
		bytes.NewReader(data),
		ix.ES.Update.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("update stock of product %d: %w", productID, err)
	}
	defer res.Body.Close()
	return responseError("update", res)
}

// DeleteProduct drops the product document. A document that was never indexed is not an error.
func (ix *Index) DeleteProduct(ctx context.Context, productID uint) error {
	res, err := ix.ES.Delete(
		ix.Name,
		strconv.FormatUint(uint64(productID), 10),
		ix.ES.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", productID, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return responseError("delete", res)
}

func responseError(op string, res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return fmt.Errorf("elasticsearch %s: %s: %s", op, res.Status(), bytes.TrimSpace(body))
}
