package models

import (
	"time"

	"github.com/google/uuid"
)

// Category names for catalog items and ROI regions. RegionGlobal is not a
// product category; it names the whole-photo crop used as the blend base
// for region query vectors.
const (
	CategoryTop    = "top"
	CategoryBottom = "bottom"
	CategoryOuter  = "outer"
	CategoryShoes  = "shoes"
	CategoryBag    = "bag"

	RegionGlobal = "global"
)

// Categories lists the five product categories in query-priority order.
var Categories = []string{CategoryTop, CategoryBottom, CategoryOuter, CategoryShoes, CategoryBag}

func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// CatalogItem is one crawled product. Items are upserted by crawl or
// reindex and never hard-deleted except when a full-mode recrawl replaces
// the whole catalog map.
type CatalogItem struct {
	ProductID   string    `json:"product_id"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	ProductName string    `json:"product_name"`
	ProductURL  string    `json:"product_url"`
	ImageURL    string    `json:"image_url"`
	Price       *int      `json:"price"`
	Gender      Gender    `json:"gender"`
	Embedding   []float64 `json:"embedding"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *CatalogItem) Clone() *CatalogItem {
	cp := *c
	if c.Price != nil {
		p := *c.Price
		cp.Price = &p
	}
	cp.Embedding = append([]float64(nil), c.Embedding...)
	return &cp
}

// CrawlMode selects merge-into-existing vs replace-entire-catalog indexing.
type CrawlMode string

const (
	CrawlIncremental CrawlMode = "incremental"
	CrawlFull        CrawlMode = "full"
)

func ParseCrawlMode(s string) (CrawlMode, bool) {
	switch CrawlMode(s) {
	case CrawlIncremental, CrawlFull:
		return CrawlMode(s), true
	}
	return "", false
}

// CrawlStatus is the lifecycle of one catalog crawl run.
type CrawlStatus string

const (
	CrawlQueued    CrawlStatus = "QUEUED"
	CrawlRunning   CrawlStatus = "RUNNING"
	CrawlCompleted CrawlStatus = "COMPLETED"
	CrawlFailed    CrawlStatus = "FAILED"
)

// CrawlJob records one crawl run of the catalog pipeline.
type CrawlJob struct {
	ID              uuid.UUID   `json:"crawl_job_id"`
	Status          CrawlStatus `json:"status"`
	Mode            CrawlMode   `json:"mode"`
	StartedAt       *time.Time  `json:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at"`
	TotalDiscovered int         `json:"total_discovered"`
	TotalIndexed    int         `json:"total_indexed"`
	ErrorMessage    string      `json:"error_message,omitempty"`
}

func (c *CrawlJob) Clone() *CrawlJob {
	cp := *c
	if c.StartedAt != nil {
		t := *c.StartedAt
		cp.StartedAt = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
