package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwoolee/stylereel/internal/config"
	"github.com/jwoolee/stylereel/internal/state"
	"github.com/jwoolee/stylereel/internal/vectorindex"
	"github.com/jwoolee/stylereel/internal/vision"
	"github.com/jwoolee/stylereel/pkg/models"
)

// Service runs crawl jobs and keeps the catalog, its persisted snapshot,
// and the vector index in step with each other.
type Service struct {
	store   *state.Store
	crawler *Crawler
	index   vectorindex.Index
	cfg     config.CatalogConfig
	logger  *slog.Logger
}

func NewService(store *state.Store, crawler *Crawler, index vectorindex.Index, cfg config.CatalogConfig, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		crawler: crawler,
		index:   index,
		cfg:     cfg,
		logger:  logger,
	}
}

// StartCrawl registers a crawl job and runs it in the background.
func (s *Service) StartCrawl(limitPerCategory int, mode models.CrawlMode) (*models.CrawlJob, error) {
	job := &models.CrawlJob{
		ID:     uuid.New(),
		Status: models.CrawlQueued,
		Mode:   mode,
	}
	if err := s.store.PutCrawlJob(job); err != nil {
		return nil, err
	}

	go s.runCrawl(job.ID, limitPerCategory, mode)
	return job.Clone(), nil
}

// GetCrawlJob returns the current state of one crawl run.
func (s *Service) GetCrawlJob(id uuid.UUID) (*models.CrawlJob, error) {
	return s.store.GetCrawlJob(id)
}

func (s *Service) runCrawl(id uuid.UUID, limitPerCategory int, mode models.CrawlMode) {
	ctx := context.Background()
	started := time.Now().UTC()
	if err := s.store.UpdateCrawlJob(id, func(j *models.CrawlJob) {
		j.Status = models.CrawlRunning
		j.StartedAt = &started
	}); err != nil {
		return
	}

	discovered, indexed, err := s.safeCrawlAndIndex(ctx, limitPerCategory, mode)
	completed := time.Now().UTC()

	if err != nil {
		message := err.Error()
		_ = s.store.UpdateCrawlJob(id, func(j *models.CrawlJob) {
			j.Status = models.CrawlFailed
			j.CompletedAt = &completed
			j.ErrorMessage = message
		})
		s.logger.Error("catalog crawl failed",
			"crawl_job_id", id,
			"mode", mode,
			"error", err,
		)
		return
	}

	_ = s.store.UpdateCrawlJob(id, func(j *models.CrawlJob) {
		j.Status = models.CrawlCompleted
		j.CompletedAt = &completed
		j.TotalDiscovered = discovered
		j.TotalIndexed = indexed
	})
	s.logger.Info("catalog crawl finished",
		"crawl_job_id", id,
		"mode", mode,
		"discovered", discovered,
		"indexed", indexed,
		"duration", completed.Sub(started),
	)
}

// safeCrawlAndIndex converts a panic anywhere in the crawl into an error
// so a bad page or listing can only fail the job, never the process.
func (s *Service) safeCrawlAndIndex(ctx context.Context, limitPerCategory int, mode models.CrawlMode) (discovered, indexed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("crawl panicked: %v", r)
		}
	}()
	return s.crawlAndIndex(ctx, limitPerCategory, mode)
}

func (s *Service) crawlAndIndex(ctx context.Context, limitPerCategory int, mode models.CrawlMode) (discovered, indexed int, err error) {
	products := s.crawler.Discover(ctx, limitPerCategory)

	items := make([]*models.CatalogItem, 0, len(products))
	for _, item := range products {
		items = append(items, item)
	}
	indexed = s.crawler.EmbedItems(ctx, items)

	// A crawl that found nothing still leaves a usable catalog behind.
	if len(items) == 0 {
		items = FallbackItems()
		indexed = len(items)
	}

	if err := s.store.MergeCatalog(items, mode == models.CrawlFull); err != nil {
		return 0, 0, fmt.Errorf("persist catalog: %w", err)
	}
	snapshot := s.store.CatalogItems()
	s.syncIndex(ctx, snapshot, mode)
	if err := s.store.MarkIndexed(mode, time.Now().UTC()); err != nil {
		return 0, 0, fmt.Errorf("record crawl completion: %w", err)
	}

	if s.cfg.DatasetExportEnabled {
		s.ExportDatasets(snapshot)
	}
	return len(items), indexed, nil
}

// syncIndex pushes embeddings to the vector index. Index trouble is logged
// and swallowed: crawls must complete even when Qdrant is down.
func (s *Service) syncIndex(ctx context.Context, items []*models.CatalogItem, mode models.CrawlMode) {
	valid := make([]*models.CatalogItem, 0, len(items))
	for _, item := range items {
		if len(item.Embedding) == vision.EmbeddingDim {
			valid = append(valid, item)
		}
	}
	if len(valid) == 0 {
		return
	}

	ensure := s.index.EnsureCollection
	if mode == models.CrawlFull {
		ensure = s.index.Reset
	}
	if err := ensure(ctx, vision.EmbeddingDim); err != nil {
		s.logger.Warn("vector index collection setup failed", "error", err)
		return
	}
	if err := s.index.Upsert(ctx, valid); err != nil {
		s.logger.Warn("vector index upsert failed", "items", len(valid), "error", err)
	}
}

// RebuildIndex re-downloads every catalog thumbnail, recomputes its
// embedding, and re-upserts it. Items whose image cannot be fetched keep
// their previous embedding.
func (s *Service) RebuildIndex(ctx context.Context) (total, indexed int, err error) {
	items := s.store.CatalogItems()

	for _, item := range items {
		embedding := s.crawler.EmbeddingFromURL(ctx, item.ImageURL)
		if len(embedding) == 0 {
			continue
		}
		updated := time.Now().UTC()
		err := s.store.UpdateCatalogItem(item.ProductID, func(ci *models.CatalogItem) {
			ci.Embedding = embedding
			ci.UpdatedAt = updated
		})
		if err != nil {
			continue
		}
		item.Embedding = embedding
		item.UpdatedAt = updated
		if err := s.index.EnsureCollection(ctx, vision.EmbeddingDim); err == nil {
			if err := s.index.Upsert(ctx, []*models.CatalogItem{item}); err != nil {
				s.logger.Warn("vector index upsert failed", "product_id", item.ProductID, "error", err)
			}
		}
		indexed++
	}

	if err := s.store.MarkIndexed(models.CrawlFull, time.Now().UTC()); err != nil {
		return 0, 0, err
	}
	total, _ = s.store.CatalogSize()
	return total, indexed, nil
}

// Stats summarizes catalog coverage and crawl recency.
type Stats struct {
	TotalProducts        int            `json:"total_products"`
	TotalIndexedProducts int            `json:"total_indexed_products"`
	Categories           map[string]int `json:"categories"`
	PerCategoryIndexed   map[string]int `json:"per_category_indexed"`
	LastCrawlCompletedAt *time.Time     `json:"last_crawl_completed_at"`
	LastIncrementalAt    *time.Time     `json:"last_incremental_at"`
	LastFullReindexAt    *time.Time     `json:"last_full_reindex_at"`
}

func (s *Service) Stats() Stats {
	items := s.store.CatalogItems()

	stats := Stats{
		Categories:         make(map[string]int),
		PerCategoryIndexed: make(map[string]int),
	}
	stats.TotalProducts = len(items)
	for _, item := range items {
		stats.Categories[item.Category]++
		if len(item.Embedding) > 0 {
			stats.TotalIndexedProducts++
			stats.PerCategoryIndexed[item.Category]++
		}
	}

	for _, job := range s.store.ListCrawlJobs() {
		if job.Status != models.CrawlCompleted || job.CompletedAt == nil {
			continue
		}
		if stats.LastCrawlCompletedAt == nil || job.CompletedAt.After(*stats.LastCrawlCompletedAt) {
			stats.LastCrawlCompletedAt = job.CompletedAt
		}
	}
	stats.LastIncrementalAt, stats.LastFullReindexAt = s.store.IndexTimestamps()
	return stats
}
