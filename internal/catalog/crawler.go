// Package catalog discovers products from the Musinsa storefront, embeds
// their thumbnails, and keeps the searchable catalog fresh.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jwoolee/stylereel/internal/assets"
	"github.com/jwoolee/stylereel/internal/cache"
	"github.com/jwoolee/stylereel/internal/config"
	"github.com/jwoolee/stylereel/internal/vision"
	"github.com/jwoolee/stylereel/pkg/models"
)

const crawlUserAgent = "Mozilla/5.0"

// SeedQueries are the Korean storefront keywords crawled per category.
// The bottom category crawls with the "바지" keyword for result quality
// while keeping "bottom" as its internal name.
func SeedQueries() map[string][]string {
	return map[string][]string{
		models.CategoryShoes:  {"남성 신발", "남성 스니커즈", "남성 부츠"},
		models.CategoryTop:    {"남성 상의", "남성 맨투맨", "남성 니트", "남성 긴팔 티셔츠"},
		models.CategoryOuter:  {"남성 아우터", "남성 자켓", "남성 코트"},
		models.CategoryBottom: {"남성 바지", "남성 데님", "남성 슬랙스"},
		models.CategoryBag:    {"남성 가방", "남성 백팩", "남성 크로스백"},
	}
}

var koByCategory = map[string]string{
	models.CategoryOuter:  "아우터",
	models.CategoryTop:    "상의",
	models.CategoryBottom: "바지",
	models.CategoryShoes:  "신발",
	models.CategoryBag:    "가방",
}

// thumbnailCacheTTL bounds how long fetched thumbnail bytes stay in the
// shared cache before the disk copy becomes the only tier.
const thumbnailCacheTTL = 6 * time.Hour

// Crawler fetches product listings from the goods API, falling back to
// scraping the search results page when the API yields nothing.
type Crawler struct {
	cfg       config.CatalogConfig
	storage   *assets.Storage
	thumbs    cache.Cache
	crawlHTTP *http.Client
	embedHTTP *http.Client
	logger    *slog.Logger
}

func NewCrawler(cfg config.CatalogConfig, storage *assets.Storage, thumbs cache.Cache, logger *slog.Logger) *Crawler {
	return &Crawler{
		cfg:       cfg,
		storage:   storage,
		thumbs:    thumbs,
		crawlHTTP: &http.Client{Timeout: cfg.CrawlTimeout},
		embedHTTP: &http.Client{Timeout: cfg.EmbedTimeout},
		logger:    logger,
	}
}

// Discover crawls every category up to targetPerCategory items, deduped by
// product ID across queries. Categories that come up short are optionally
// padded with synthetic fallback items.
func (c *Crawler) Discover(ctx context.Context, limitPerCategory int) map[string]*models.CatalogItem {
	target := max(1, max(limitPerCategory, c.cfg.MinItemsPerCategory))
	products := make(map[string]*models.CatalogItem)

	for category, queries := range SeedQueries() {
		if len(queries) == 0 {
			continue
		}
		merged := make(map[string]*models.CatalogItem)
		perQueryTarget := max(80, int(math.Ceil(float64(target)/float64(len(queries)))))

		for _, query := range queries {
			needed := target - len(merged)
			if needed <= 0 {
				break
			}
			fetchTarget := min(target, max(40, min(perQueryTarget, needed)))
			discovered := c.crawlGoodsAPI(ctx, category, query, fetchTarget)
			if len(discovered) == 0 {
				discovered = c.crawlSearchPage(ctx, category, query, fetchTarget)
			}
			for _, item := range discovered {
				merged[item.ProductID] = item
			}
		}

		// One deeper pass with the primary query when the spread of
		// queries still came up short.
		if len(merged) < target {
			discovered := c.crawlGoodsAPI(ctx, category, queries[0], target)
			if len(discovered) == 0 {
				discovered = c.crawlSearchPage(ctx, category, queries[0], target)
			}
			for _, item := range discovered {
				merged[item.ProductID] = item
			}
		}

		items := make([]*models.CatalogItem, 0, len(merged))
		for _, item := range merged {
			if len(items) >= target {
				break
			}
			items = append(items, item)
		}
		if len(items) < target && c.cfg.AllowSyntheticPadding {
			items = append(items, fallbackItemsForCategory(category, target-len(items))...)
		}
		for _, item := range items {
			products[item.ProductID] = item
		}
	}

	return products
}

// goodsResponse is the shape of the goods listing API payload. Fields the
// storefront sometimes returns as strings and sometimes as numbers decode
// through flexValue.
type goodsResponse struct {
	Meta struct {
		Result string `json:"result"`
	} `json:"meta"`
	Data struct {
		List []struct {
			GoodsNo      flexValue `json:"goodsNo"`
			GoodsName    string    `json:"goodsName"`
			GoodsLinkURL string    `json:"goodsLinkUrl"`
			Thumbnail    string    `json:"thumbnail"`
			BrandName    string    `json:"brandName"`
			Brand        string    `json:"brand"`
			Price        flexValue `json:"price"`
			Sex          string    `json:"sex"`
		} `json:"list"`
		Pagination struct {
			HasNext bool `json:"hasNext"`
		} `json:"pagination"`
	} `json:"data"`
}

// flexValue accepts a JSON string, number, or null and keeps its raw text.
type flexValue string

func (f *flexValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexValue(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexValue(strconv.FormatInt(int64(n), 10))
		return nil
	}
	*f = ""
	return nil
}

func (f flexValue) Int() (int, bool) {
	v, err := strconv.Atoi(string(f))
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Crawler) crawlGoodsAPI(ctx context.Context, category, keyword string, limit int) []*models.CatalogItem {
	var records []*models.CatalogItem
	seen := make(map[string]bool)
	pageSize := min(60, max(10, limit))
	maxPages := max(5, int(math.Ceil(float64(limit)/float64(pageSize)))+1)

	for page := 1; len(records) < limit && page <= maxPages; page++ {
		params := url.Values{
			"keyword":  {keyword},
			"caller":   {"SEARCH"},
			"gf":       {"A"},
			"page":     {fmt.Sprint(page)},
			"size":     {fmt.Sprint(pageSize)},
			"sortCode": {"POPULAR"},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DiscoveryBaseURL+"?"+params.Encode(), nil)
		if err != nil {
			break
		}
		req.Header.Set("User-Agent", crawlUserAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Referer", c.cfg.SearchBaseURL+"/search/results/goods?keyword="+url.QueryEscape(keyword))

		resp, err := c.crawlHTTP.Do(req)
		if err != nil {
			c.logger.Warn("goods api request failed", "category", category, "page", page, "error", err)
			break
		}
		var payload goodsResponse
		err = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK || payload.Meta.Result != "SUCCESS" || len(payload.Data.List) == 0 {
			break
		}

		for _, row := range payload.Data.List {
			productID := strings.TrimSpace(string(row.GoodsNo))
			if productID == "" || seen[productID] {
				continue
			}
			productURL := strings.TrimSpace(row.GoodsLinkURL)
			imageURL := strings.TrimSpace(row.Thumbnail)
			productName := strings.TrimSpace(row.GoodsName)
			if productURL == "" || imageURL == "" || productName == "" {
				continue
			}
			imageURL = absoluteURL(c.cfg.SearchBaseURL, imageURL)
			productURL = absoluteURL(c.cfg.SearchBaseURL, productURL)

			brand := firstNonEmpty(strings.TrimSpace(row.BrandName), strings.TrimSpace(row.Brand), "MUSINSA")
			var price *int
			if v, ok := row.Price.Int(); ok {
				price = &v
			} else {
				price = extractPrice(string(row.Price))
			}

			records = append(records, &models.CatalogItem{
				ProductID:   productID,
				Category:    category,
				Brand:       brand,
				ProductName: productName,
				ProductURL:  normalizeURL(productURL),
				ImageURL:    imageURL,
				Price:       price,
				Gender:      InferGender(row.Sex + " " + brand + " " + productName + " " + productURL),
				UpdatedAt:   time.Now().UTC(),
			})
			seen[productID] = true
			if len(records) >= limit {
				break
			}
		}
		if !payload.Data.Pagination.HasNext {
			break
		}
	}
	return records
}

// crawlSearchPage scrapes product anchors from the HTML search results as
// a fallback when the goods API is unavailable.
func (c *Crawler) crawlSearchPage(ctx context.Context, category, query string, limit int) []*models.CatalogItem {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(query), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", crawlUserAgent)

	resp, err := c.crawlHTTP.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil
	}

	var records []*models.CatalogItem
	seen := make(map[string]bool)
	doc.Find("a[href]").EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		href, _ := anchor.Attr("href")
		if !strings.Contains(href, "/products/") {
			return true
		}
		productURL := normalizeURL(absoluteURL(c.cfg.SearchBaseURL, href))
		if seen[productURL] {
			return true
		}
		seen[productURL] = true
		productID := assets.ProductIDFromURL(productURL)

		var imageURL, productName string
		if img := anchor.Find("img").First(); img.Length() > 0 {
			imageURL = strings.TrimSpace(firstNonEmpty(img.AttrOr("src", ""), img.AttrOr("data-src", "")))
			productName = strings.TrimSpace(img.AttrOr("alt", ""))
		}
		if imageURL == "" {
			return true
		}
		imageURL = absoluteURL(c.cfg.SearchBaseURL, imageURL)

		text := strings.Join(strings.Fields(anchor.Text()), " ")
		if productName == "" {
			productName = firstNonEmpty(text, category+" item")
		}

		records = append(records, &models.CatalogItem{
			ProductID:   productID,
			Category:    category,
			Brand:       "MUSINSA",
			ProductName: productName,
			ProductURL:  productURL,
			ImageURL:    imageURL,
			Price:       extractPrice(text),
			Gender:      InferGender(productName + " " + productURL),
			UpdatedAt:   time.Now().UTC(),
		})
		return len(records) < limit
	})
	return records
}

// EmbedItems fills in missing embeddings, preferring thumbnail pixels and
// falling back to a text embedding. Returns how many items ended up with
// an embedding.
func (c *Crawler) EmbedItems(ctx context.Context, items []*models.CatalogItem) int {
	indexed := 0
	for _, item := range items {
		if len(item.Embedding) == 0 {
			if c.cfg.UseImageEmbedding {
				item.Embedding = c.EmbeddingFromURL(ctx, item.ImageURL)
			}
			if len(item.Embedding) == 0 {
				item.Embedding = vision.TextEmbedding(item.Category + " " + item.ProductName)
			}
		}
		if len(item.Embedding) > 0 {
			indexed++
		}
	}
	return indexed
}

// EmbeddingFromURL downloads a thumbnail (through the on-disk cache) and
// embeds it. Returns nil when the image cannot be fetched or decoded.
func (c *Crawler) EmbeddingFromURL(ctx context.Context, imageURL string) []float64 {
	data, err := c.thumbnailBytes(ctx, imageURL)
	if err != nil {
		return nil
	}
	img, err := vision.DecodeBytes(data)
	if err != nil {
		return nil
	}
	return vision.Embedding(img)
}

// thumbnailBytes resolves thumbnail bytes through two cache tiers, the
// shared cache first and the on-disk copy second, before going to the
// network.
func (c *Crawler) thumbnailBytes(ctx context.Context, imageURL string) ([]byte, error) {
	cacheKey := cache.ThumbnailKey(imageURL)
	if data, ok, err := c.thumbs.Get(ctx, cacheKey); err == nil && ok && len(data) > 0 {
		return data, nil
	}

	cachePath := c.storage.ThumbnailCachePath(imageURL)
	if data, err := readFileIfExists(cachePath); err == nil && len(data) > 0 {
		_ = c.thumbs.Set(ctx, cacheKey, data, thumbnailCacheTTL)
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", crawlUserAgent)
	resp, err := c.embedHTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("thumbnail fetch returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("read thumbnail: %w", err)
	}
	writeFileQuiet(cachePath, data)
	_ = c.thumbs.Set(ctx, cacheKey, data, thumbnailCacheTTL)
	return data, nil
}

func (c *Crawler) searchURL(query string) string {
	return c.cfg.SearchBaseURL + "/search/goods?keyword=" + url.QueryEscape(query)
}

// FallbackItems are synthetic placeholders embedded from seed text so the
// matcher never runs against an empty catalog.
func FallbackItems() []*models.CatalogItem {
	var items []*models.CatalogItem
	for _, category := range []string{models.CategoryOuter, models.CategoryTop, models.CategoryBottom, models.CategoryShoes, models.CategoryBag} {
		items = append(items, fallbackItemsForCategory(category, 3)...)
	}
	return items
}

func fallbackItemsForCategory(category string, needed int) []*models.CatalogItem {
	if needed <= 0 {
		return nil
	}
	if needed > 3 {
		needed = 3
	}
	ko, ok := koByCategory[category]
	if !ok {
		ko = category
	}
	query := ko + " 코디"
	searchURL := "https://www.musinsa.com/search/goods?keyword=" + url.QueryEscape(query)

	items := make([]*models.CatalogItem, 0, needed)
	for idx := 1; idx <= needed; idx++ {
		price := 28000 + idx*6000
		items = append(items, &models.CatalogItem{
			ProductID:   fmt.Sprintf("fallback-%s-%d", category, idx),
			Category:    category,
			Brand:       "MUSINSA",
			ProductName: fmt.Sprintf("%s 추천 아이템 %d", ko, idx),
			ProductURL:  searchURL,
			ImageURL:    searchURL,
			Price:       &price,
			Gender:      models.GenderUnisex,
			Embedding:   vision.TextEmbedding(query),
			UpdatedAt:   time.Now().UTC(),
		})
	}
	return items
}

// IsFallbackItem reports whether a product is a synthetic placeholder.
func IsFallbackItem(productID string) bool {
	return strings.HasPrefix(productID, "fallback-")
}

var priceRe = regexp.MustCompile(`([0-9][0-9,]{3,})`)

func extractPrice(text string) *int {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &v
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func absoluteURL(base, raw string) string {
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if strings.HasPrefix(raw, "/") {
		return strings.TrimRight(base, "/") + raw
	}
	return raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func readFileIfExists(path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func writeFileQuiet(path string, data []byte) {
	_ = os.WriteFile(path, data, 0o644)
}
