package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jwoolee/stylereel/internal/api/response"
	"github.com/jwoolee/stylereel/internal/catalog"
	"github.com/jwoolee/stylereel/pkg/models"
)

const (
	minCrawlLimit     = 300
	maxCrawlLimit     = 1000
	defaultCrawlLimit = 300
)

// CatalogHandler serves the /v1/catalog endpoints.
type CatalogHandler struct {
	svc *catalog.Service
}

func NewCatalogHandler(svc *catalog.Service) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// StartCrawl queues a crawl run. The per-category limit is clamped to the
// storefront-friendly range rather than rejected.
func (h *CatalogHandler) StartCrawl(w http.ResponseWriter, r *http.Request) {
	limit := defaultCrawlLimit
	if raw := r.URL.Query().Get("limit_per_category"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit_per_category must be an integer", nil)
			return
		}
		limit = v
	}
	if limit < minCrawlLimit {
		limit = minCrawlLimit
	}
	if limit > maxCrawlLimit {
		limit = maxCrawlLimit
	}

	mode := models.CrawlIncremental
	if raw := r.URL.Query().Get("mode"); raw != "" {
		var ok bool
		mode, ok = models.ParseCrawlMode(raw)
		if !ok {
			response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "mode must be incremental or full", nil)
			return
		}
	}

	job, err := h.svc.StartCrawl(limit, mode)
	if err != nil {
		serviceError(w, err)
		return
	}
	response.Accepted(w, job)
}

// GetCrawlJob returns one crawl run's progress.
func (h *CatalogHandler) GetCrawlJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "crawlJobID"))
	if err != nil {
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "crawl job id must be a UUID", nil)
		return
	}
	job, err := h.svc.GetCrawlJob(id)
	if err != nil {
		serviceError(w, err)
		return
	}
	response.JSON(w, job)
}

// RebuildIndex re-embeds every catalog item synchronously.
func (h *CatalogHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	total, indexed, err := h.svc.RebuildIndex(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	response.JSON(w, map[string]int{
		"total_products":         total,
		"total_indexed_products": indexed,
	})
}

// Stats summarizes catalog size and index freshness.
func (h *CatalogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.svc.Stats())
}
