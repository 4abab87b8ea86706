package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 255 / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

func TestEmbeddingDimensionAndNorm(t *testing.T) {
	vec := Embedding(gradientImage(120, 160))
	require.Len(t, vec, EmbeddingDim)

	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestEmbeddingDeterministic(t *testing.T) {
	img := gradientImage(80, 100)
	assert.Equal(t, Embedding(img), Embedding(img))
}

func TestCosineSimilarityRange(t *testing.T) {
	a := Embedding(gradientImage(80, 100))
	b := Embedding(solidImage(80, 100, color.RGBA{200, 30, 30, 255}))

	sim := CosineSimilarity(a, b)
	assert.GreaterOrEqual(t, sim, 0.0)
	assert.LessOrEqual(t, sim, 1.0)
}

func TestCosineSimilarityIdentical(t *testing.T) {
	a := Embedding(gradientImage(64, 64))
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{0, 1, 0}
	assert.Equal(t, 0.0, CosineSimilarity(a, b))
}

func TestCosineSimilarityMismatchedLengths(t *testing.T) {
	a := Embedding(gradientImage(64, 64))
	b := TextEmbedding("wool knit sweater")
	assert.Equal(t, 0.0, CosineSimilarity(a, b))
}

func TestTextEmbeddingDeterministic(t *testing.T) {
	a := TextEmbedding("블랙 오버핏 티셔츠")
	b := TextEmbedding("블랙 오버핏 티셔츠")
	require.Len(t, a, TextEmbeddingDim)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-9)
}

func TestTextEmbeddingEmpty(t *testing.T) {
	vec := TextEmbedding("")
	require.Len(t, vec, TextEmbeddingDim)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	vec := []float64{0, 0, 0}
	assert.Equal(t, []float64{0, 0, 0}, Normalize(vec))
}

func TestStyleSignatureSolidColor(t *testing.T) {
	sig := StyleSignature(solidImage(64, 64, color.RGBA{180, 40, 40, 255}))

	assert.InDelta(t, 180.0/255.0, sig.MeanRGB[0], 0.05)
	assert.InDelta(t, 40.0/255.0, sig.MeanRGB[1], 0.05)
	assert.Greater(t, sig.Saturation, 0.5)
	// A flat color field has no interior edges.
	assert.Less(t, sig.EdgeDensity, 0.05)
}

func TestStyleSignatureAllWhiteFallsBack(t *testing.T) {
	sig := StyleSignature(solidImage(64, 64, color.RGBA{255, 255, 255, 255}))
	assert.False(t, sig.Zero())
	assert.InDelta(t, 1.0, sig.MeanRGB[0], 0.02)
	assert.Zero(t, sig.Saturation)
}

func TestAnalyzeRegionsFullPhoto(t *testing.T) {
	qf := AnalyzeRegions(gradientImage(200, 300))

	require.Contains(t, qf.Vectors, "global")
	for _, cat := range []string{"top", "bottom", "outer", "shoes", "bag"} {
		require.Contains(t, qf.Vectors, cat, "missing region %s", cat)
		assert.Len(t, qf.Vectors[cat], EmbeddingDim)
		assert.False(t, qf.Signatures[cat].Zero())
	}
	assert.Len(t, qf.Regions, 6)
}

func TestAnalyzeRegionsTinyImage(t *testing.T) {
	qf := AnalyzeRegions(gradientImage(8, 8))

	require.Contains(t, qf.Vectors, "global")
	assert.Len(t, qf.Vectors, 1)
	require.Len(t, qf.Regions, 1)
	assert.Equal(t, 0.5, qf.Regions[0].Confidence)
}
