// Package api wires the chi router, middleware stack, and static asset
// serving for the StyleReel HTTP surface.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/jwoolee/stylereel/internal/api/middleware"
	"github.com/jwoolee/stylereel/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	CreateJob  http.HandlerFunc
	GetJob     http.HandlerFunc
	RerankJob  http.HandlerFunc
	ApproveJob http.HandlerFunc
	RetryJob   http.HandlerFunc
	PublishJob http.HandlerFunc

	StartCrawl   http.HandlerFunc
	GetCrawlJob  http.HandlerFunc
	RebuildIndex http.HandlerFunc
	CatalogStats http.HandlerFunc

	History http.HandlerFunc
	Health  http.HandlerFunc
	Metrics http.HandlerFunc

	// AssetRoot is served read-only at /assets.
	AssetRoot string
}

// NewRouter builds the chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/healthz", orNotImplemented(deps.Health))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/v1/jobs", orNotImplemented(deps.CreateJob))
		r.Get("/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
		r.Post("/v1/jobs/{jobID}/rerank", orNotImplemented(deps.RerankJob))
		r.Post("/v1/jobs/{jobID}/approve", orNotImplemented(deps.ApproveJob))
		r.Post("/v1/jobs/{jobID}/retry", orNotImplemented(deps.RetryJob))
		r.Post("/v1/jobs/{jobID}/publish", orNotImplemented(deps.PublishJob))

		r.Post("/v1/catalog/crawl/jobs", orNotImplemented(deps.StartCrawl))
		r.Get("/v1/catalog/crawl/jobs/{crawlJobID}", orNotImplemented(deps.GetCrawlJob))
		r.Post("/v1/catalog/index/rebuild", orNotImplemented(deps.RebuildIndex))
		r.Get("/v1/catalog/stats", orNotImplemented(deps.CatalogStats))

		r.Get("/v1/history", orNotImplemented(deps.History))
		r.Get("/v1/metrics", orNotImplemented(deps.Metrics))
	})

	if deps.AssetRoot != "" {
		fs := http.StripPrefix("/assets/", http.FileServer(http.Dir(deps.AssetRoot)))
		r.Get("/assets/*", fs.ServeHTTP)
	}

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
