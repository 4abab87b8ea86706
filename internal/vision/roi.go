package vision

import (
	"image"

	"github.com/jwoolee/stylereel/pkg/models"
)

// Region boxes are fixed fractional crops of a full-body outfit photo,
// tuned for vertically framed shots. Confidence reflects how reliably the
// box isolates the garment it targets.
type regionBox struct {
	x1, y1, x2, y2 float64
	confidence     float64
}

const tinyImageSide = 16

var (
	globalBox = regionBox{0, 0, 1, 1, 0.92}

	regionBoxes = map[string]regionBox{
		models.CategoryTop:    {0.10, 0.05, 0.90, 0.46, 0.86},
		models.CategoryBottom: {0.16, 0.40, 0.84, 0.78, 0.88},
		models.CategoryOuter:  {0.06, 0.02, 0.94, 0.60, 0.74},
		models.CategoryShoes:  {0.15, 0.80, 0.85, 0.99, 0.70},
	}

	// Bags hang at either side of the body, so the bag feature averages a
	// left and a right strip instead of using one box.
	bagLeftBox  = regionBox{0.00, 0.25, 0.38, 0.80, 0.58}
	bagRightBox = regionBox{0.62, 0.25, 1.00, 0.80, 0.58}
	bagDebugBox = regionBox{0.00, 0.25, 1.00, 0.80, 0.58}
)

// QueryFeatures bundles everything region analysis extracts from one
// uploaded photo: a query vector and style signature per category plus the
// global frame, and the crop boxes used, for debugging.
type QueryFeatures struct {
	Vectors    map[string][]float64
	Signatures map[string]Signature
	Regions    []models.RoiRegion
}

// AnalyzeRegions crops the photo into per-category regions and embeds each
// crop. Images smaller than 16px on either side carry too little signal for
// regional crops and get a low-confidence global vector only.
func AnalyzeRegions(img image.Image) QueryFeatures {
	qf := QueryFeatures{
		Vectors:    make(map[string][]float64),
		Signatures: make(map[string]Signature),
	}

	b := img.Bounds()
	if b.Dx() < tinyImageSide || b.Dy() < tinyImageSide {
		qf.Vectors[models.RegionGlobal] = Embedding(img)
		qf.Signatures[models.RegionGlobal] = StyleSignature(img)
		qf.Regions = append(qf.Regions, models.RoiRegion{
			Category:   models.RegionGlobal,
			BBox:       []float64{0, 0, 1, 1},
			Confidence: 0.5,
		})
		return qf
	}

	qf.Vectors[models.RegionGlobal] = Embedding(img)
	qf.Signatures[models.RegionGlobal] = StyleSignature(img)
	qf.Regions = append(qf.Regions, debugRegion(models.RegionGlobal, globalBox))

	for _, cat := range models.Categories {
		if cat == models.CategoryBag {
			left := cropRegion(img, bagLeftBox)
			right := cropRegion(img, bagRightBox)
			qf.Vectors[cat] = Normalize(averageVectors(Embedding(left), Embedding(right)))
			qf.Signatures[cat] = averageSignatures(StyleSignature(left), StyleSignature(right))
			qf.Regions = append(qf.Regions, debugRegion(cat, bagDebugBox))
			continue
		}
		box := regionBoxes[cat]
		crop := cropRegion(img, box)
		qf.Vectors[cat] = Embedding(crop)
		qf.Signatures[cat] = StyleSignature(crop)
		qf.Regions = append(qf.Regions, debugRegion(cat, box))
	}

	return qf
}

func debugRegion(category string, box regionBox) models.RoiRegion {
	return models.RoiRegion{
		Category:   category,
		BBox:       []float64{box.x1, box.y1, box.x2, box.y2},
		Confidence: box.confidence,
	}
}

// RegionConfidence returns the crop confidence for a category, or the
// global confidence when the category has no dedicated box.
func RegionConfidence(category string) float64 {
	if category == models.CategoryBag {
		return bagDebugBox.confidence
	}
	if box, ok := regionBoxes[category]; ok {
		return box.confidence
	}
	return globalBox.confidence
}

// cropRegion extracts a fractional sub-rectangle. Edges are clamped so
// every crop is at least one pixel wide and tall.
func cropRegion(img image.Image, box regionBox) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	left := clampInt(int(float64(w)*box.x1), 0, w-1)
	top := clampInt(int(float64(h)*box.y1), 0, h-1)
	right := int(float64(w) * box.x2)
	if right > w {
		right = w
	}
	if right <= left {
		right = left + 1
	}
	bottom := int(float64(h) * box.y2)
	if bottom > h {
		bottom = h
	}
	if bottom <= top {
		bottom = top + 1
	}

	out := image.NewRGBA(image.Rect(0, 0, right-left, bottom-top))
	for y := 0; y < bottom-top; y++ {
		for x := 0; x < right-left; x++ {
			out.Set(x, y, img.At(b.Min.X+left+x, b.Min.Y+top+y))
		}
	}
	return out
}

func averageVectors(a, b []float64) []float64 {
	if len(a) != len(b) {
		return a
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = (a[i] + b[i]) / 2
	}
	return out
}

func averageSignatures(a, b Signature) Signature {
	return Signature{
		MeanRGB: [3]float64{
			(a.MeanRGB[0] + b.MeanRGB[0]) / 2,
			(a.MeanRGB[1] + b.MeanRGB[1]) / 2,
			(a.MeanRGB[2] + b.MeanRGB[2]) / 2,
		},
		Saturation:  (a.Saturation + b.Saturation) / 2,
		EdgeDensity: (a.EdgeDensity + b.EdgeDensity) / 2,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
