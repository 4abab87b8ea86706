package vision

import (
	"image"
	"math"
)

// Embedding geometry. The vector is 16 bins per RGB channel over a 96×96
// resample (near-white background masked), an 8×8 spatial RGB thumbnail,
// and a 16-bin edge-magnitude histogram, L2-normalized as a whole.
const (
	EmbeddingDim = 3*histBins + spatialSide*spatialSide*3 + edgeBins

	histSide    = 96
	histBins    = 16
	spatialSide = 8
	edgeBins    = 16

	// TextEmbeddingDim is the length of the deterministic text-derived
	// fallback embedding used when no thumbnail can be fetched. It is
	// intentionally shorter than EmbeddingDim: cosine similarity between
	// mismatched lengths is defined as zero, so text-embedded items only
	// surface where the minimum-similarity filter is relaxed.
	TextEmbeddingDim = 48

	// Near-white pixels are ignored in histograms: e-commerce cutouts sit
	// on white backgrounds that would otherwise dominate the vector.
	whiteCutoff   = 245
	minMaskedPxls = 800
)

// Embedding computes the deterministic feature vector for an image.
func Embedding(img image.Image) []float64 {
	hist := resizeRGBA(img, histSide, histSide)

	vec := make([]float64, 0, EmbeddingDim)

	// Color histogram over non-background pixels.
	var bins [3][histBins]float64
	masked := 0
	forEachPixel(hist, func(r, g, b uint8) {
		if r > whiteCutoff && g > whiteCutoff && b > whiteCutoff {
			return
		}
		masked++
		bins[0][int(r)/(256/histBins)]++
		bins[1][int(g)/(256/histBins)]++
		bins[2][int(b)/(256/histBins)]++
	})
	if masked < minMaskedPxls {
		bins = [3][histBins]float64{}
		forEachPixel(hist, func(r, g, b uint8) {
			bins[0][int(r)/(256/histBins)]++
			bins[1][int(g)/(256/histBins)]++
			bins[2][int(b)/(256/histBins)]++
		})
	}
	for ch := 0; ch < 3; ch++ {
		vec = append(vec, bins[ch][:]...)
	}

	// Coarse spatial thumbnail for shape/region discrimination.
	spatial := resizeRGBA(img, spatialSide, spatialSide)
	for y := 0; y < spatialSide; y++ {
		for x := 0; x < spatialSide; x++ {
			r, g, b := rgbAt(spatial, x, y)
			vec = append(vec, float64(r)/255.0, float64(g)/255.0, float64(b)/255.0)
		}
	}

	// Edge-magnitude histogram to reduce plain-color overfitting.
	edges := edgeMagnitudes(hist)
	var eh [edgeBins]float64
	for _, e := range edges {
		eh[int(e)/(256/edgeBins)]++
	}
	vec = append(vec, eh[:]...)

	return Normalize(vec)
}

// TextEmbedding derives a deterministic fallback vector from text so that
// items without a fetchable thumbnail remain searchable.
func TextEmbedding(text string) []float64 {
	vec := make([]float64, TextEmbeddingDim)
	if text == "" {
		return vec
	}
	for idx, ch := range []byte(text) {
		vec[idx%TextEmbeddingDim] += float64(ch%31) / 31.0
	}
	return Normalize(vec)
}

// Normalize L2-normalizes vec in place and returns it. Zero vectors are
// returned unchanged.
func Normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// clamped to [0,1]. Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}

func forEachPixel(img *image.RGBA, fn func(r, g, b uint8)) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl := rgbAt(img, x, y)
			fn(r, g, bl)
		}
	}
}

// edgeMagnitudes converts the image to grayscale and returns per-pixel
// gradient magnitudes clamped to [0,255], a FIND_EDGES-style pass.
func edgeMagnitudes(img *image.RGBA) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	gray := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl := rgbAt(img, b.Min.X+x, b.Min.Y+y)
			// ITU-R 601 luma, same weighting PIL uses for L mode.
			gray[y*w+x] = (299*int(r) + 587*int(g) + 114*int(bl)) / 1000
		}
	}
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx, gy := 0, 0
			if x+1 < w {
				gx = gray[y*w+x+1] - gray[y*w+x]
			}
			if y+1 < h {
				gy = gray[(y+1)*w+x] - gray[y*w+x]
			}
			m := abs(gx) + abs(gy)
			if m > 255 {
				m = 255
			}
			out[y*w+x] = uint8(m)
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
