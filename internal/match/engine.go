// Package match scores catalog items against an uploaded outfit photo and
// assembles the recommended look.
package match

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jwoolee/stylereel/internal/assets"
	"github.com/jwoolee/stylereel/internal/catalog"
	"github.com/jwoolee/stylereel/internal/config"
	"github.com/jwoolee/stylereel/internal/state"
	"github.com/jwoolee/stylereel/internal/vectorindex"
	"github.com/jwoolee/stylereel/internal/vision"
	"github.com/jwoolee/stylereel/pkg/models"
)

// Params describe one catalog search.
type Params struct {
	UploadImagePath string
	LookCount       int
	Category        *string
	PriceCap        *int
	ColorHint       string
	TargetGender    models.Gender
}

// Engine matches an uploaded photo against the catalog, using the vector
// index when it is reachable and an in-memory scan otherwise.
type Engine struct {
	store   *state.Store
	index   vectorindex.Index
	storage *assets.Storage
	cfg     config.CatalogConfig
	topK    int
	logger  *slog.Logger

	sigMu    sync.Mutex
	sigCache map[string]vision.Signature
}

// NewEngine wires the matcher. topKMultiplier scales how many vector hits
// are pulled per requested look.
func NewEngine(store *state.Store, index vectorindex.Index, storage *assets.Storage, cfg config.CatalogConfig, topKMultiplier int, logger *slog.Logger) *Engine {
	if topKMultiplier <= 0 {
		topKMultiplier = 12
	}
	return &Engine{
		store:    store,
		index:    index,
		storage:  storage,
		cfg:      cfg,
		topK:     topKMultiplier,
		logger:   logger,
		sigCache: make(map[string]vision.Signature),
	}
}

// EffectiveLookCount is the number of items a search actually targets. A
// whole-outfit match needs at least a top and a bottom, so it never asks
// for fewer than two.
func EffectiveLookCount(lookCount int, category *string) int {
	if category != nil {
		if lookCount < 1 {
			return 1
		}
		return lookCount
	}
	if lookCount < 2 {
		return 2
	}
	return lookCount
}

// RequiredCategories lists categories a whole-outfit match must cover.
func RequiredCategories(lookCount int, category *string) []string {
	if category != nil || lookCount < 2 {
		return nil
	}
	return []string{models.CategoryTop, models.CategoryBottom}
}

type scoredCandidate struct {
	final float64
	item  *models.CatalogItem
	score models.ScoreBreakdown
	tags  []string
}

// Search ranks catalog items for one photo. It returns the selected items
// plus the region crops used, for debugging.
func (e *Engine) Search(ctx context.Context, p Params) ([]models.MatchItem, map[string]models.RoiRegion) {
	effective := EffectiveLookCount(p.LookCount, p.Category)

	qf, ok := e.queryFeatures(p.UploadImagePath)
	roiDebug := make(map[string]models.RoiRegion)
	if ok {
		for _, region := range qf.Regions {
			roiDebug[region.Category] = region
		}
	}
	globalVec := qf.Vectors[models.RegionGlobal]
	if !ok || len(globalVec) == 0 {
		return nil, roiDebug
	}

	catalogItems := e.store.CatalogItems()
	if len(catalogItems) == 0 {
		catalogItems = catalog.FallbackItems()
	}

	colorHint := strings.ToLower(strings.TrimSpace(p.ColorHint))
	required := RequiredCategories(effective, p.Category)
	preferred := required
	if len(preferred) == 0 {
		preferred = models.Categories
	}
	limit := effective * e.topK
	if limit < 30 {
		limit = 30
	}
	candidateItems, usedIndex := e.searchCandidates(ctx, qf.Vectors, catalogItems, p.Category, preferred, limit)
	indexTag := "memory"
	if usedIndex {
		indexTag = "qdrant"
	}

	var candidates []scoredCandidate
	for _, item := range candidateItems {
		itemGender := e.effectiveItemGender(item)
		if p.Category != nil && item.Category != *p.Category {
			continue
		}
		if !catalog.GenderCompatible(p.TargetGender, itemGender) {
			continue
		}
		if p.TargetGender != models.GenderUnisex && itemGender == models.GenderUnisex &&
			catalog.HasOppositeGenderCue(p.TargetGender, item.Brand+" "+item.ProductName+" "+item.ProductURL) {
			continue
		}
		if p.PriceCap != nil && item.Price != nil && *item.Price > *p.PriceCap {
			continue
		}
		if len(item.Embedding) == 0 {
			continue
		}

		itemQuery := composeQueryVector(item.Category, qf.Vectors)
		if len(itemQuery) == 0 {
			itemQuery = globalVec
		}
		imageSim := vision.CosineSimilarity(itemQuery, item.Embedding)
		minImageSim := e.cfg.MinImageSim
		if catalog.IsFallbackItem(item.ProductID) {
			minImageSim = 0
		}
		if imageSim < minImageSim {
			continue
		}

		itemName := item.Brand + " " + item.ProductName
		categoryScore := 0.8
		if p.Category != nil && item.Category == *p.Category {
			categoryScore = 1.0
		}
		priceScore := priceFitScore(item.Price, p.PriceCap)
		itemSig := e.itemStyleSignature(item)

		var categorySig, querySig *vision.Signature
		if sig, found := qf.Signatures[item.Category]; found {
			s := sig
			categorySig, querySig = &s, &s
		} else if sig, found := qf.Signatures[models.RegionGlobal]; found {
			s := sig
			querySig = &s
		}
		styleScore := styleSimilarityScore(categorySig, itemSig)

		queryRGB := [3]float64{}
		if querySig != nil {
			queryRGB = querySig.MeanRGB
		}
		itemRGB := itemSig.MeanRGB
		colorScore := colorSimilarityScore(queryRGB, itemName, &itemRGB)
		attrScore := attributeCompatibilityScore(querySig, itemName, item.Category)
		if attrScore < 0.25 {
			continue
		}
		stylePenalty := targetGenderStylePenalty(p.TargetGender, item.Category, itemName)

		metaScore := 0.58*styleScore + 0.22*colorScore + 0.20*attrScore
		final := (0.54*imageSim + 0.18*styleScore + 0.20*colorScore + 0.06*attrScore + 0.02*priceScore) * stylePenalty

		score := models.ScoreBreakdown{
			Image:         round4(imageSim),
			Text:          0,
			Category:      round4(categoryScore),
			Price:         round4(priceScore),
			Final:         round4(final),
			Meta:          round4(metaScore),
			RoiConfidence: round4(roiDebug[item.Category].Confidence),
		}

		queryRegion := models.RegionGlobal
		if _, found := qf.Vectors[item.Category]; found {
			queryRegion = item.Category
		}
		tags := []string{
			"vector:image-only",
			"query_region:" + queryRegion,
			"category:" + item.Category,
			"source:crawled",
			"model:hist-embed",
			"rerank:style-signature",
			"rerank:color-compat",
			"rerank:attr-compat",
			"target_gender:" + string(p.TargetGender),
			"item_gender:" + string(itemGender),
			"index:" + indexTag,
		}
		if p.PriceCap != nil {
			tags = append(tags, "price_cap:"+strconv.Itoa(*p.PriceCap))
		}
		if colorHint != "" {
			tags = append(tags, "color:"+colorHint)
		}
		if stylePenalty < 0.999 {
			tags = append(tags, "rerank:target-style-penalty")
		}

		candidates = append(candidates, scoredCandidate{final: final, item: item, score: score, tags: tags})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].final > candidates[j].final })

	var top []scoredCandidate
	if len(required) > 0 {
		top = selectBalanced(candidates, effective, required)
	} else if len(candidates) > effective {
		top = candidates[:effective]
	} else {
		top = candidates
	}

	results := make([]models.MatchItem, 0, len(top))
	for idx, row := range top {
		score := row.score
		score.RetrievalRank = idx + 1
		results = append(results, models.MatchItem{
			Category:       row.item.Category,
			ProductID:      row.item.ProductID,
			Brand:          row.item.Brand,
			ProductName:    row.item.ProductName,
			Price:          clonePrice(row.item.Price),
			ProductURL:     row.item.ProductURL,
			ImageURL:       row.item.ImageURL,
			EvidenceTags:   row.tags,
			ScoreBreakdown: &score,
		})
	}

	results = e.backfill(results, effective, required, p.Category, p.TargetGender)
	return results, roiDebug
}

// Candidates produces replacement options for one category, used when a
// user asks to swap an item out. A price cap under the catalog's minimum
// realistic price is treated as unset.
func (e *Engine) Candidates(ctx context.Context, uploadImagePath, category string, priceCap *int, colorHint string, target models.Gender) []models.MatchItem {
	normalizedCap := priceCap
	if priceCap != nil && *priceCap < 10000 {
		normalizedCap = nil
	}

	results, _ := e.Search(ctx, Params{
		UploadImagePath: uploadImagePath,
		LookCount:       3,
		Category:        &category,
		PriceCap:        normalizedCap,
		ColorHint:       colorHint,
		TargetGender:    target,
	})

	colorText := titleCase(strings.TrimSpace(colorHint))
	if colorText != "" {
		for i := range results {
			if results[i].ProductName != "" && !strings.Contains(results[i].ProductName, colorText) {
				results[i].ProductName = titleCase(category) + " " + colorText + " " + results[i].ProductName
			}
			results[i].EvidenceTags = append(results[i].EvidenceTags, "color:"+strings.ToLower(strings.TrimSpace(colorHint)))
		}
	}
	return results
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		words[i] = strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
	return strings.Join(words, " ")
}

// backfill pads a sparse whole-outfit result with synthetic placeholder
// items so required categories stay covered when the crawl is thin. Only
// active when synthetic padding is enabled.
func (e *Engine) backfill(results []models.MatchItem, effective int, required []string, category *string, target models.Gender) []models.MatchItem {
	if category != nil || !e.cfg.AllowSyntheticPadding {
		return results
	}

	existingCategories := make(map[string]bool)
	existingIDs := make(map[string]bool)
	for _, item := range results {
		existingCategories[item.Category] = true
		existingIDs[item.ProductID] = true
	}
	var missing []string
	for _, req := range required {
		if !existingCategories[req] {
			missing = append(missing, req)
		}
	}
	if len(results) >= effective && len(missing) == 0 {
		return results
	}

	needed := effective - len(results)
	fallback := catalog.FallbackItems()
	fc := models.FailureCrawlTimeout

	for _, req := range missing {
		if existingCategories[req] || needed <= 0 {
			continue
		}
		for _, item := range fallback {
			if item.Category != req || existingIDs[item.ProductID] {
				continue
			}
			if !catalog.GenderCompatible(target, e.effectiveItemGender(item)) {
				continue
			}
			existingIDs[item.ProductID] = true
			existingCategories[item.Category] = true
			results = append(results, fallbackMatchItem(item, []string{"fallback:required-category", "required:" + req}, &fc))
			needed--
			break
		}
	}

	for _, item := range fallback {
		if needed <= 0 {
			break
		}
		if existingIDs[item.ProductID] {
			continue
		}
		if !catalog.GenderCompatible(target, e.effectiveItemGender(item)) {
			continue
		}
		existingIDs[item.ProductID] = true
		results = append(results, fallbackMatchItem(item, []string{"fallback:search-link"}, &fc))
		needed--
	}

	if len(results) > effective {
		requiredSet := make(map[string]bool, len(required))
		for _, req := range required {
			requiredSet[req] = true
		}
		var mustKeep, optional []models.MatchItem
		for _, item := range results {
			if requiredSet[item.Category] {
				mustKeep = append(mustKeep, item)
			} else {
				optional = append(optional, item)
			}
		}
		results = append(mustKeep, optional...)
		results = results[:effective]
	}
	return results
}

func fallbackMatchItem(item *models.CatalogItem, tags []string, fc *models.FailureCode) models.MatchItem {
	return models.MatchItem{
		Category:     item.Category,
		ProductID:    item.ProductID,
		Brand:        item.Brand,
		ProductName:  item.ProductName,
		Price:        clonePrice(item.Price),
		ProductURL:   item.ProductURL,
		ImageURL:     item.ImageURL,
		EvidenceTags: tags,
		ScoreBreakdown: &models.ScoreBreakdown{
			Image: 0.45, Text: 0.5, Category: 0.7, Price: 0.5, Final: 0.52,
		},
		FailureCode: fc,
	}
}

// selectBalanced picks the best candidate for each required category
// first, then fills the remaining slots by score.
func selectBalanced(candidates []scoredCandidate, lookCount int, required []string) []scoredCandidate {
	var selected []scoredCandidate
	used := make(map[string]bool)

	for _, req := range required {
		for _, row := range candidates {
			if row.item.Category == req && !used[row.item.ProductID] {
				selected = append(selected, row)
				used[row.item.ProductID] = true
				break
			}
		}
	}
	for _, row := range candidates {
		if len(selected) >= lookCount {
			break
		}
		if used[row.item.ProductID] {
			continue
		}
		selected = append(selected, row)
		used[row.item.ProductID] = true
	}
	if len(selected) > lookCount {
		selected = selected[:lookCount]
	}
	return selected
}

// searchCandidates narrows the catalog through the vector index. When the
// index is unreachable or returns nothing, the full catalog is scored.
func (e *Engine) searchCandidates(ctx context.Context, vectors map[string][]float64, fallbackItems []*models.CatalogItem, category *string, preferred []string, limit int) ([]*models.CatalogItem, bool) {
	if !e.index.Ready(ctx) {
		return fallbackItems, false
	}

	byID := make(map[string]*models.CatalogItem, len(fallbackItems))
	for _, item := range fallbackItems {
		byID[item.ProductID] = item
	}
	seen := make(map[string]bool)
	var candidates []*models.CatalogItem

	searchOnce := func(vector []float64, categoryFilter string, topk int) {
		if len(vector) == 0 {
			return
		}
		hits, err := e.index.Search(ctx, vector, categoryFilter, topk)
		if err != nil {
			e.logger.Warn("vector search failed", "category", categoryFilter, "error", err)
			return
		}
		for _, hit := range hits {
			if seen[hit.ProductID] {
				continue
			}
			if item, found := byID[hit.ProductID]; found {
				candidates = append(candidates, item)
				seen[hit.ProductID] = true
			}
		}
	}

	if category != nil {
		searchOnce(composeQueryVector(*category, vectors), *category, limit)
		if len(candidates) == 0 {
			searchOnce(vectors[models.RegionGlobal], *category, limit)
		}
		if len(candidates) == 0 {
			return fallbackItems, true
		}
		return candidates, true
	}

	perCategoryTopK := limit / len(preferred)
	if perCategoryTopK < 12 {
		perCategoryTopK = 12
	}
	for _, cat := range preferred {
		searchOnce(composeQueryVector(cat, vectors), cat, perCategoryTopK)
	}
	// A final unfiltered pass captures cross-category alternatives.
	searchOnce(vectors[models.RegionGlobal], "", limit)

	if len(candidates) == 0 {
		return fallbackItems, true
	}
	return candidates, true
}

func (e *Engine) queryFeatures(uploadImagePath string) (vision.QueryFeatures, bool) {
	if uploadImagePath == "" {
		return vision.QueryFeatures{}, false
	}
	img, err := vision.DecodeFile(uploadImagePath)
	if err != nil {
		e.logger.Warn("query image decode failed", "path", uploadImagePath, "error", err)
		return vision.QueryFeatures{}, false
	}
	return vision.AnalyzeRegions(img), true
}

// itemStyleSignature loads an item's style signature from its cached
// thumbnail, memoized per product. Items without a cached thumbnail get a
// zero signature.
func (e *Engine) itemStyleSignature(item *models.CatalogItem) vision.Signature {
	e.sigMu.Lock()
	if sig, ok := e.sigCache[item.ProductID]; ok {
		e.sigMu.Unlock()
		return sig
	}
	e.sigMu.Unlock()

	var sig vision.Signature
	if img, err := vision.DecodeFile(e.storage.ThumbnailCachePath(item.ImageURL)); err == nil {
		sig = vision.StyleSignature(img)
	}

	e.sigMu.Lock()
	e.sigCache[item.ProductID] = sig
	e.sigMu.Unlock()
	return sig
}

func (e *Engine) effectiveItemGender(item *models.CatalogItem) models.Gender {
	if item.Gender != models.GenderUnisex {
		return item.Gender
	}
	return catalog.InferGender(item.Brand + " " + item.ProductName + " " + item.ProductURL)
}

func clonePrice(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
