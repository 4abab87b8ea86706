// Package state persists all service state as a single JSON snapshot on
// disk: jobs, the idempotency map, the catalog, and crawl runs. One store
// instance owns the file; every mutation rewrites it atomically.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwoolee/stylereel/pkg/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrIdempotencyConflict is returned when an Idempotency-Key is bound
	// to an existing job; callers should return that job instead.
	ErrIdempotencyConflict = errors.New("idempotency key already bound")
)

// snapshot is the on-disk shape. Unknown fields from older or newer
// versions are ignored on load.
type snapshot struct {
	Jobs              map[string]*models.Job         `json:"jobs"`
	IdempotencyMap    map[string]string              `json:"idempotency_map"`
	Catalog           map[string]*models.CatalogItem `json:"catalog"`
	CrawlJobs         map[string]*models.CrawlJob    `json:"crawl_jobs"`
	LastIncrementalAt *time.Time                     `json:"last_incremental_at"`
	LastFullReindexAt *time.Time                     `json:"last_full_reindex_at"`
}

// Store is the snapshot-backed state store. All methods are safe for
// concurrent use; a single mutex serializes access and every save happens
// while it is held.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	data   snapshot
}

// Open loads the snapshot at path, or starts empty when the file does not
// exist or cannot be parsed. A corrupt snapshot is logged and discarded
// rather than blocking startup.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger,
		data: snapshot{
			Jobs:           make(map[string]*models.Job),
			IdempotencyMap: make(map[string]string),
			Catalog:        make(map[string]*models.CatalogItem),
			CrawlJobs:      make(map[string]*models.CrawlJob),
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		logger.Warn("state file is corrupt, starting empty", "path", path, "error", err)
		return s, nil
	}
	if snap.Jobs != nil {
		s.data.Jobs = snap.Jobs
	}
	if snap.IdempotencyMap != nil {
		s.data.IdempotencyMap = snap.IdempotencyMap
	}
	if snap.Catalog != nil {
		s.data.Catalog = snap.Catalog
	}
	if snap.CrawlJobs != nil {
		s.data.CrawlJobs = snap.CrawlJobs
	}
	s.data.LastIncrementalAt = snap.LastIncrementalAt
	s.data.LastFullReindexAt = snap.LastFullReindexAt

	logger.Info("state loaded",
		"jobs", len(s.data.Jobs),
		"catalog_items", len(s.data.Catalog),
		"crawl_jobs", len(s.data.CrawlJobs),
	)
	return s, nil
}

// save writes the snapshot via a temp file and rename. Callers must hold
// the mutex. A failed write leaves the previous on-disk snapshot intact
// and the error propagates to the mutating caller.
func (s *Store) save() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// CreateJob stores a new job and, when idempotencyKey is non-empty, binds
// the key to it. If the key is already bound, the existing job is returned
// with ErrIdempotencyConflict and nothing is written.
func (s *Store) CreateJob(job *models.Job, idempotencyKey string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if existingID, ok := s.data.IdempotencyMap[idempotencyKey]; ok {
			if existing, ok := s.data.Jobs[existingID]; ok {
				return existing.Clone(), ErrIdempotencyConflict
			}
		}
		s.data.IdempotencyMap[idempotencyKey] = job.ID.String()
	}
	s.data.Jobs[job.ID.String()] = job.Clone()
	if err := s.save(); err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// GetJob returns a deep copy of a job.
func (s *Store) GetJob(id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.data.Jobs[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// UpdateJob applies fn to the stored job under the lock and persists the
// result. fn receives the live record and may mutate it in place.
func (s *Store) UpdateJob(id uuid.UUID, fn func(*models.Job) error) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.data.Jobs[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	if err := s.save(); err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// ListJobs returns deep copies of all jobs, newest first.
func (s *Store) ListJobs() []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*models.Job, 0, len(s.data.Jobs))
	for _, job := range s.data.Jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID.String() > jobs[j].ID.String()
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// CatalogItems returns deep copies of every catalog item.
func (s *Store) CatalogItems() []*models.CatalogItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]*models.CatalogItem, 0, len(s.data.Catalog))
	for _, item := range s.data.Catalog {
		items = append(items, item.Clone())
	}
	return items
}

// CatalogSize returns item counts per category plus the total.
func (s *Store) CatalogSize() (total int, byCategory map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCategory = make(map[string]int)
	for _, item := range s.data.Catalog {
		byCategory[item.Category]++
	}
	return len(s.data.Catalog), byCategory
}

// MergeCatalog upserts items by product ID. When replace is true the whole
// catalog is swapped for the given set first.
func (s *Store) MergeCatalog(items []*models.CatalogItem, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replace {
		s.data.Catalog = make(map[string]*models.CatalogItem, len(items))
	}
	for _, item := range items {
		s.data.Catalog[item.ProductID] = item.Clone()
	}
	return s.save()
}

// UpdateCatalogItem applies fn to one item under the lock.
func (s *Store) UpdateCatalogItem(productID string, fn func(*models.CatalogItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.data.Catalog[productID]
	if !ok {
		return ErrNotFound
	}
	fn(item)
	return s.save()
}

// PutCrawlJob inserts or replaces a crawl job record.
func (s *Store) PutCrawlJob(job *models.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.CrawlJobs[job.ID.String()] = job.Clone()
	return s.save()
}

// GetCrawlJob returns a deep copy of a crawl job.
func (s *Store) GetCrawlJob(id uuid.UUID) (*models.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.data.CrawlJobs[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// UpdateCrawlJob applies fn to the stored crawl job under the lock.
func (s *Store) UpdateCrawlJob(id uuid.UUID, fn func(*models.CrawlJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.data.CrawlJobs[id.String()]
	if !ok {
		return ErrNotFound
	}
	fn(job)
	return s.save()
}

// ListCrawlJobs returns deep copies of all crawl job records.
func (s *Store) ListCrawlJobs() []*models.CrawlJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*models.CrawlJob, 0, len(s.data.CrawlJobs))
	for _, job := range s.data.CrawlJobs {
		jobs = append(jobs, job.Clone())
	}
	return jobs
}

// MarkIndexed records when the last crawl of each mode finished.
func (s *Store) MarkIndexed(mode models.CrawlMode, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := at
	if mode == models.CrawlFull {
		s.data.LastFullReindexAt = &t
	} else {
		s.data.LastIncrementalAt = &t
	}
	return s.save()
}

// IndexTimestamps returns the last incremental and full crawl times.
func (s *Store) IndexTimestamps() (incremental, full *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.LastIncrementalAt != nil {
		t := *s.data.LastIncrementalAt
		incremental = &t
	}
	if s.data.LastFullReindexAt != nil {
		t := *s.data.LastFullReindexAt
		full = &t
	}
	return incremental, full
}
