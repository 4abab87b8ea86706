package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwoolee/stylereel/internal/vision"
	"github.com/jwoolee/stylereel/pkg/models"
)

func TestPriceFitScore(t *testing.T) {
	cap50k := 50000

	tests := []struct {
		name  string
		price *int
		cap   *int
		want  float64
	}{
		{"no cap is neutral", intPtr(30000), nil, 0.6},
		{"no price is neutral", nil, &cap50k, 0.6},
		{"within cap", intPtr(49000), &cap50k, 1.0},
		{"at cap", intPtr(50000), &cap50k, 1.0},
		{"half over cap", intPtr(75000), &cap50k, 0.5},
		{"double cap floors at zero", intPtr(120000), &cap50k, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, priceFitScore(tt.price, tt.cap), 1e-9)
		})
	}
}

func intPtr(v int) *int { return &v }

func TestClosestPaletteDarkNavyHeuristic(t *testing.T) {
	// Dark but bluish reads as navy, not black.
	assert.Equal(t, "navy", closestPalette([3]float64{0.10, 0.12, 0.22}))
	// Dark and neutral reads as black.
	assert.Equal(t, "black", closestPalette([3]float64{0.08, 0.08, 0.08}))
	assert.Equal(t, "white", closestPalette([3]float64{0.95, 0.95, 0.95}))
	assert.Equal(t, "red", closestPalette([3]float64{0.70, 0.15, 0.15}))
}

func TestColorSimilarityScoreMatchingClass(t *testing.T) {
	navyQuery := [3]float64{0.10, 0.14, 0.35}
	navyItem := [3]float64{0.11, 0.15, 0.36}
	blackItem := [3]float64{0.08, 0.08, 0.08}

	same := colorSimilarityScore(navyQuery, "COVERNAT 네이비 스웻셔츠", &navyItem)
	clash := colorSimilarityScore(navyQuery, "COVERNAT 블랙 스웻셔츠", &blackItem)
	assert.Greater(t, same, clash)
	assert.Greater(t, same, 0.9)
}

func TestColorSimilarityScoreNeighborhood(t *testing.T) {
	brownQuery := [3]float64{0.42, 0.28, 0.20}
	beigeItem := [3]float64{0.78, 0.70, 0.56}
	redItem := [3]float64{0.68, 0.18, 0.18}

	neighbor := colorSimilarityScore(brownQuery, "beige knit", &beigeItem)
	far := colorSimilarityScore(brownQuery, "red knit", &redItem)
	assert.Greater(t, neighbor, far)
}

func TestStyleSimilarityScoreMissingQuery(t *testing.T) {
	assert.Equal(t, 0.6, styleSimilarityScore(nil, vision.Signature{}))
}

func TestStyleSimilarityScoreIdenticalSignatures(t *testing.T) {
	sig := vision.Signature{MeanRGB: [3]float64{0.3, 0.3, 0.3}, Saturation: 0.2, EdgeDensity: 0.1}
	assert.InDelta(t, 1.0, styleSimilarityScore(&sig, sig), 1e-9)
}

func TestAttributeCompatibilityScore(t *testing.T) {
	plain := &vision.Signature{Saturation: 0.2, EdgeDensity: 0.1}
	busy := &vision.Signature{Saturation: 0.7, EdgeDensity: 0.4}

	assert.Equal(t, 0.7, attributeCompatibilityScore(nil, "anything", models.CategoryTop))
	// A loud pattern clashes with a plain query photo.
	assert.Less(t, attributeCompatibilityScore(plain, "leopard shirt", models.CategoryTop), 0.4)
	// The same pattern is fine when the query itself is busy.
	assert.Equal(t, 1.0, attributeCompatibilityScore(busy, "leopard shirt", models.CategoryBottom))
	// Underwear cues on tops are heavily discounted regardless.
	assert.Less(t, attributeCompatibilityScore(busy, "lace cami top", models.CategoryTop), 0.25)
}

func TestTargetGenderStylePenalty(t *testing.T) {
	assert.Equal(t, 1.0, targetGenderStylePenalty(models.GenderUnisex, models.CategoryTop, "crop lace top"))
	assert.InDelta(t, 0.15, targetGenderStylePenalty(models.GenderMen, models.CategoryTop, "크롭 니트"), 1e-9)
	assert.InDelta(t, 0.55, targetGenderStylePenalty(models.GenderMen, models.CategoryTop, "헨리넥 셔츠"), 1e-9)
	assert.InDelta(t, 0.20, targetGenderStylePenalty(models.GenderMen, models.CategoryBottom, "호피 팬츠"), 1e-9)
	assert.InDelta(t, 0.75, targetGenderStylePenalty(models.GenderWomen, models.CategoryTop, "oversized workwear jacket"), 1e-9)
	assert.Equal(t, 1.0, targetGenderStylePenalty(models.GenderMen, models.CategoryShoes, "크롭"))
}

func TestComposeQueryVectorBlends(t *testing.T) {
	vectors := map[string][]float64{
		models.RegionGlobal: {1, 0},
		models.CategoryTop:  {0, 1},
	}
	composed := composeQueryVector(models.CategoryTop, vectors)
	// 0.82*cat + 0.18*global, renormalized.
	assert.InDelta(t, 1.0, composed[0]*composed[0]+composed[1]*composed[1], 1e-9)
	assert.Greater(t, composed[1], composed[0])

	assert.Equal(t, []float64{1, 0}, composeQueryVector(models.CategoryBag, map[string][]float64{models.RegionGlobal: {1, 0}}))
}

func TestEffectiveLookCount(t *testing.T) {
	top := models.CategoryTop

	assert.Equal(t, 2, EffectiveLookCount(1, nil))
	assert.Equal(t, 3, EffectiveLookCount(3, nil))
	assert.Equal(t, 1, EffectiveLookCount(1, &top))
	assert.Equal(t, 4, EffectiveLookCount(4, &top))
}

func TestRequiredCategories(t *testing.T) {
	top := models.CategoryTop

	assert.Nil(t, RequiredCategories(3, &top))
	assert.Nil(t, RequiredCategories(1, nil))
	assert.Equal(t, []string{models.CategoryTop, models.CategoryBottom}, RequiredCategories(2, nil))
}

func TestRound4(t *testing.T) {
	assert.Equal(t, 0.1235, round4(0.12345))
	assert.Equal(t, 1.0, round4(0.99999))
}
