// Package vectorindex maintains the approximate-nearest-neighbor index of
// catalog embeddings in Qdrant. The index is an accelerator only: every
// caller must tolerate it being down and fall back to in-memory scans.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jwoolee/stylereel/pkg/models"
)

var (
	ErrUnavailable = errors.New("vector index unavailable")
	ErrTimeout     = errors.New("vector index timeout")
)

// Hit is one search result: the catalog product and its similarity score
// as reported by the index.
type Hit struct {
	ProductID string
	Score     float64
}

// Index is the vector-search surface the matcher depends on.
type Index interface {
	// Ready reports whether the index can serve searches right now.
	Ready(ctx context.Context) bool
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, dim int) error
	// Reset drops and recreates the collection.
	Reset(ctx context.Context, dim int) error
	// Upsert writes item embeddings in batches.
	Upsert(ctx context.Context, items []*models.CatalogItem) error
	// Search returns the nearest catalog items, optionally filtered to a
	// category.
	Search(ctx context.Context, vector []float64, category string, limit int) ([]Hit, error)
}

// Config for the Qdrant REST client.
type Config struct {
	BaseURL         string
	Collection      string
	Timeout         time.Duration
	UpsertBatchSize int
}

// Client talks to Qdrant over its REST API.
type Client struct {
	baseURL    string
	collection string
	batchSize  int
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Index = (*Client)(nil)

// NewClient creates a Qdrant REST client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	batch := cfg.UpsertBatchSize
	if batch <= 0 {
		batch = 200
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		batchSize:  batch,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (c *Client) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/collections/"+c.collection, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) EnsureCollection(ctx context.Context, dim int) error {
	if c.Ready(ctx) {
		return nil
	}
	return c.createCollection(ctx, dim)
}

func (c *Client) Reset(ctx context.Context, dim int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/collections/"+c.collection, nil)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyError(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return c.createCollection(ctx, dim)
}

func (c *Client) createCollection(ctx context.Context, dim int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	return c.do(ctx, http.MethodPut, "/collections/"+c.collection, body, nil)
}

func (c *Client) Upsert(ctx context.Context, items []*models.CatalogItem) error {
	type point struct {
		ID      uint64         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	var points []point
	for _, item := range items {
		if len(item.Embedding) == 0 {
			continue
		}
		points = append(points, point{
			ID:     PointID(item.ProductID),
			Vector: item.Embedding,
			Payload: map[string]any{
				"product_id": item.ProductID,
				"category":   item.Category,
				"gender":     string(item.Gender),
			},
		})
	}

	for start := 0; start < len(points); start += c.batchSize {
		end := start + c.batchSize
		if end > len(points) {
			end = len(points)
		}
		body := map[string]any{"points": points[start:end]}
		if err := c.do(ctx, http.MethodPut, "/collections/"+c.collection+"/points", body, nil); err != nil {
			return fmt.Errorf("upsert points %d..%d: %w", start, end, err)
		}
	}
	return nil
}

func (c *Client) Search(ctx context.Context, vector []float64, category string, limit int) ([]Hit, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if category != "" {
		body["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "category", "match": map[string]any{"value": category}},
			},
		}
	}

	var out struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ProductID string `json:"product_id"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/search", body, &out); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(out.Result))
	for _, r := range out.Result {
		if r.Payload.ProductID == "" {
			continue
		}
		hits = append(hits, Hit{ProductID: r.Payload.ProductID, Score: r.Score})
	}
	return hits, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnavailable, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PointID maps a product ID onto Qdrant's unsigned integer ID space
// deterministically, so re-upserts overwrite rather than duplicate.
func PointID(productID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(productID))
	return h.Sum64() & (1<<63 - 1)
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Noop is the disabled index: never ready, searches return nothing, and
// writes succeed silently so callers need no special casing.
type Noop struct{}

var _ Index = (*Noop)(nil)

func (Noop) Ready(context.Context) bool                          { return false }
func (Noop) EnsureCollection(context.Context, int) error         { return nil }
func (Noop) Reset(context.Context, int) error                    { return nil }
func (Noop) Upsert(context.Context, []*models.CatalogItem) error { return nil }
func (Noop) Search(context.Context, []float64, string, int) ([]Hit, error) {
	return nil, nil
}
