package vectorindex

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwoolee/stylereel/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPointIDDeterministicAndPositive(t *testing.T) {
	a := PointID("product-123")
	b := PointID("product-123")
	c := PointID("product-124")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Less(t, a, uint64(1)<<63)
}

func TestSearchWithCategoryFilter(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/test/points/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"score": 0.91, "payload": map[string]any{"product_id": "p1"}},
				{"score": 0.84, "payload": map[string]any{"product_id": "p2"}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Collection: "test", Timeout: time.Second}, testLogger())
	hits, err := client.Search(context.Background(), []float64{0.1, 0.2}, "top", 10)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, "p1", hits[0].ProductID)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
	require.Contains(t, gotBody, "filter")
}

func TestSearchServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Collection: "test", Timeout: time.Second}, testLogger())
	_, err := client.Search(context.Background(), []float64{0.1}, "", 5)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUpsertBatches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Collection: "test", Timeout: time.Second, UpsertBatchSize: 2}, testLogger())
	items := []*models.CatalogItem{
		{ProductID: "a", Embedding: []float64{1}},
		{ProductID: "b", Embedding: []float64{1}},
		{ProductID: "c", Embedding: []float64{1}},
		{ProductID: "no-embedding"},
	}
	require.NoError(t, client.Upsert(context.Background(), items))
	assert.Equal(t, 2, calls)
}

func TestNoopIndex(t *testing.T) {
	var idx Index = Noop{}
	ctx := context.Background()

	assert.False(t, idx.Ready(ctx))
	assert.NoError(t, idx.Upsert(ctx, nil))
	hits, err := idx.Search(ctx, []float64{1}, "top", 5)
	assert.NoError(t, err)
	assert.Empty(t, hits)
}
