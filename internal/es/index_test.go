package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/online_kart/internal/models"
)

type recorded struct {
	method string
	path   string
	body   string
}

func fakeES(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Index, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recorded{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return &Index{ES: client, Name: "products"}, &reqs
}

func TestIndex_Search(t *testing.T) {
	ix, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"hits":{"total":{"value":2},"hits":[
			{"_id":"3","_source":{"id":3}},
			{"_id":"11","_source":{}}
		]}}`)
	})

	total, ids, err := ix.Search(context.Background(), "mug", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []uint{3, 11}, ids)

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, "/products/_search", req.path)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.body), &body))
	assert.EqualValues(t, 10, body["size"])
	assert.Contains(t, req.body, `"title^2"`)
}

func TestIndex_SearchErrorStatus(t *testing.T) {
	ix, _ := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"bad query"}`)
	})

	_, _, err := ix.Search(context.Background(), "x", 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad query")
}

func TestIndex_IndexAndUpdateStock(t *testing.T) {
	ix, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"updated"}`)
	})

	p := models.Product{ID: 5, Title: "Mug", Price: decimal.RequireFromString("9.5"), Stock: 4, IsActive: true}
	require.NoError(t, ix.IndexProduct(context.Background(), p))
	require.NoError(t, ix.UpdateStock(context.Background(), 5, 1))

	require.Len(t, *reqs, 2)
	assert.Equal(t, http.MethodPut, (*reqs)[0].method)
	assert.Equal(t, "/products/_doc/5", (*reqs)[0].path)
	assert.Contains(t, (*reqs)[0].body, `"price":"9.50"`)

	assert.True(t, strings.HasSuffix((*reqs)[1].path, "/_update/5"))
	assert.JSONEq(t, `{"doc":{"stock":1}}`, (*reqs)[1].body)
}

func TestIndex_DeleteProduct(t *testing.T) {
	ix, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/7") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"result":"not_found"}`)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/8") {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":"boom"}`)
			return
		}
		_, _ = io.WriteString(w, `{"result":"deleted"}`)
	})

	require.NoError(t, ix.DeleteProduct(context.Background(), 5))
	require.NoError(t, ix.DeleteProduct(context.Background(), 7))
	require.Error(t, ix.DeleteProduct(context.Background(), 8))

	require.NotEmpty(t, *reqs)
	assert.Equal(t, http.MethodDelete, (*reqs)[0].method)
	assert.Equal(t, "/products/_doc/5", (*reqs)[0].path)
}
