package match

import (
	"math"
	"strings"

	"github.com/jwoolee/stylereel/internal/catalog"
	"github.com/jwoolee/stylereel/internal/vision"
	"github.com/jwoolee/stylereel/pkg/models"
)

// Pattern and detail cues that clash with a plain query photo.
var (
	patternTokens = []string{
		"leopard", "호피", "paisley", "페이즐리", "floral", "flower", "플라워",
		"도트", "dot", "lace", "레이스",
	}
	detailTokens = []string{
		"henley", "헨리넥", "raglan", "래글런", "v-neck", "브이넥", "crop", "크롭",
	}
	underwearTopTokens = []string{"bra", "뷔스티에", "cami", "캐미", "camisole"}

	menTopPenaltyTokens     = []string{"crop", "크롭", "bra", "브라", "bustier", "뷔스티에", "cami", "camisole", "레이스", "lace"}
	menTopSoftPenaltyTokens = []string{"v-neck", "브이넥", "헨리넥", "henley"}
	menBottomPenaltyTokens  = []string{"leopard", "호피", "floral", "flower", "플라워", "스커트", "skirt"}
	womenTopPenaltyTokens   = []string{"oversized workwear", "work jacket"}
)

var colorPalette = map[string][3]float64{
	"black": {0.08, 0.08, 0.08},
	"white": {0.92, 0.92, 0.92},
	"gray":  {0.50, 0.50, 0.50},
	"navy":  {0.10, 0.14, 0.35},
	"blue":  {0.18, 0.30, 0.72},
	"brown": {0.42, 0.28, 0.20},
	"beige": {0.78, 0.70, 0.56},
	"khaki": {0.58, 0.56, 0.36},
	"green": {0.22, 0.44, 0.28},
	"red":   {0.68, 0.18, 0.18},
}

type colorAlias struct {
	token     string
	canonical string
}

var colorAliases = []colorAlias{
	{"블랙", "black"}, {"black", "black"},
	{"오프화이트", "white"}, {"white", "white"}, {"화이트", "white"},
	{"그레이", "gray"}, {"gray", "gray"}, {"grey", "gray"},
	{"네이비", "navy"}, {"navy", "navy"},
	{"블루", "blue"}, {"blue", "blue"},
	{"브라운", "brown"}, {"brown", "brown"},
	{"베이지", "beige"}, {"beige", "beige"},
	{"카키", "khaki"}, {"khaki", "khaki"},
	{"그린", "green"}, {"green", "green"},
	{"레드", "red"}, {"red", "red"},
}

// Palette classes considered close enough not to clash.
var colorNeighborhood = map[string][]string{
	"navy":  {"blue"},
	"blue":  {"navy"},
	"brown": {"beige", "khaki"},
	"beige": {"brown", "khaki"},
	"khaki": {"brown", "beige"},
	"black": {"gray"},
	"gray":  {"black", "white"},
	"white": {"gray"},
}

// priceFitScore rewards items within the cap and decays linearly with the
// overshoot. Without a cap (or a price) the score is a neutral 0.6.
func priceFitScore(price, priceCap *int) float64 {
	if priceCap == nil || price == nil {
		return 0.6
	}
	if *price <= *priceCap {
		return 1.0
	}
	capVal := float64(*priceCap)
	if capVal < 1 {
		capVal = 1
	}
	over := math.Min(1.0, (float64(*price)-float64(*priceCap))/capVal)
	return math.Max(0.0, 1.0-over)
}

// styleSimilarityScore compares coarse style signatures. A missing query
// signature scores a neutral 0.6.
func styleSimilarityScore(querySig *vision.Signature, itemSig vision.Signature) float64 {
	if querySig == nil {
		return 0.6
	}
	rgbDist := colorDist(querySig.MeanRGB, itemSig.MeanRGB)
	colorScore := clamp01(1.0 - rgbDist/math.Sqrt(3.0))
	satScore := math.Max(0.0, 1.0-math.Abs(querySig.Saturation-itemSig.Saturation))
	edgeScore := math.Max(0.0, 1.0-math.Abs(querySig.EdgeDensity-itemSig.EdgeDensity))
	return 0.55*colorScore + 0.20*satScore + 0.25*edgeScore
}

// attributeCompatibilityScore penalizes loud patterns and fussy details
// when the query photo reads as plain.
func attributeCompatibilityScore(querySig *vision.Signature, itemName, category string) float64 {
	if querySig == nil {
		return 0.7
	}
	plainQuery := querySig.Saturation <= 0.38 && querySig.EdgeDensity <= 0.17
	score := 1.0
	if plainQuery && catalog.ContainsStyleToken(itemName, patternTokens) {
		score *= 0.35
	}
	if plainQuery && catalog.ContainsStyleToken(itemName, detailTokens) {
		score *= 0.72
	}
	if category == models.CategoryTop && catalog.ContainsStyleToken(itemName, underwearTopTokens) {
		score *= 0.2
	}
	return math.Max(0.05, math.Min(1.0, score))
}

// targetGenderStylePenalty discounts silhouettes that read as cut for the
// other audience even when the listing itself is nominally compatible.
func targetGenderStylePenalty(target models.Gender, category, itemName string) float64 {
	if target == models.GenderUnisex {
		return 1.0
	}
	penalty := 1.0
	if target == models.GenderMen {
		if category == models.CategoryTop {
			if catalog.ContainsStyleToken(itemName, menTopPenaltyTokens) {
				penalty *= 0.15
			}
			if catalog.ContainsStyleToken(itemName, menTopSoftPenaltyTokens) {
				penalty *= 0.55
			}
		}
		if category == models.CategoryBottom && catalog.ContainsStyleToken(itemName, menBottomPenaltyTokens) {
			penalty *= 0.20
		}
	}
	if target == models.GenderWomen {
		if category == models.CategoryTop && catalog.ContainsStyleToken(itemName, womenTopPenaltyTokens) {
			penalty *= 0.75
		}
	}
	return math.Max(0.05, math.Min(1.0, penalty))
}

// colorSimilarityScore blends a palette-class comparison with a raw RGB
// distance. Dark bluish queries classify as navy rather than black so navy
// outfits don't pull all-black items.
func colorSimilarityScore(queryRGB [3]float64, itemName string, itemRGB *[3]float64) float64 {
	name := strings.ToLower(itemName)
	var itemColors []string
	for _, alias := range colorAliases {
		if strings.Contains(name, alias.token) {
			itemColors = append(itemColors, alias.canonical)
		}
	}
	if len(itemColors) == 0 && itemRGB == nil {
		return 0.65
	}

	closest := closestPalette(queryRGB)
	var itemPalette string
	if itemRGB != nil {
		itemPalette = closestPalette(*itemRGB)
	} else if len(itemColors) > 0 {
		itemPalette = itemColors[0]
	}

	classScore := 0.2
	if itemPalette == closest {
		classScore = 1.0
	}
	for _, neighbor := range colorNeighborhood[closest] {
		if itemPalette == neighbor {
			classScore = math.Max(classScore, 0.75)
		}
	}
	if containsColor(itemColors, closest) {
		classScore = math.Max(classScore, 0.92)
	}
	if len(itemColors) > 0 && !containsColor(itemColors, closest) {
		classScore *= 0.60
		if (closest == "navy" || closest == "brown") &&
			(containsColor(itemColors, "black") || containsColor(itemColors, "gray")) {
			classScore *= 0.75
		}
	}

	var rgbScore float64
	switch {
	case itemRGB != nil:
		rgbScore = clamp01(1.0 - colorDist(queryRGB, *itemRGB)/math.Sqrt(3.0))
	case itemPalette != "":
		rgbScore = clamp01(1.0 - colorDist(queryRGB, colorPalette[itemPalette])/math.Sqrt(3.0))
	default:
		rgbScore = 0.6
	}
	return 0.55*classScore + 0.45*rgbScore
}

func closestPalette(rgb [3]float64) string {
	r, g, b := rgb[0], rgb[1], rgb[2]
	brightness := (r + g + b) / 3.0
	if brightness < 0.26 {
		if b > r+0.015 && b > g+0.012 {
			return "navy"
		}
		if math.Abs(r-g) < 0.03 && math.Abs(g-b) < 0.03 {
			return "black"
		}
	}
	best, bestDist := "", math.Inf(1)
	for _, name := range []string{"black", "white", "gray", "navy", "blue", "brown", "beige", "khaki", "green", "red"} {
		if d := colorDist(rgb, colorPalette[name]); d < bestDist {
			best, bestDist = name, d
		}
	}
	return best
}

// composeQueryVector blends a category crop's vector with the global one
// so regional queries keep whole-outfit context.
func composeQueryVector(category string, vectors map[string][]float64) []float64 {
	catVec := vectors[category]
	globalVec := vectors[models.RegionGlobal]
	if len(catVec) > 0 && len(catVec) == len(globalVec) {
		mixed := make([]float64, len(catVec))
		for i := range catVec {
			mixed[i] = 0.82*catVec[i] + 0.18*globalVec[i]
		}
		return vision.Normalize(mixed)
	}
	if len(catVec) > 0 {
		return catVec
	}
	return globalVec
}

func colorDist(a, b [3]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func containsColor(colors []string, want string) bool {
	for _, c := range colors {
		if c == want {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
