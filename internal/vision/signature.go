package vision

import "image"

const (
	sigSide    = 48
	darkCutoff = 28
)

// Signature is a coarse style summary of a region: mean RGB (normalized to
// [0,1]), mean saturation, and mean edge density over non-background
// pixels. It backs style matching that is distinct from raw embedding
// similarity.
type Signature struct {
	MeanRGB     [3]float64 `json:"mean_rgb"`
	Saturation  float64    `json:"saturation"`
	EdgeDensity float64    `json:"edge_density"`
}

// Zero reports whether the signature carries no information (e.g. derived
// from a missing or undecodable image).
func (s Signature) Zero() bool {
	return s.MeanRGB == [3]float64{} && s.Saturation == 0 && s.EdgeDensity == 0
}

// StyleSignature computes the signature over a 48×48 resample. Near-white
// background and near-black noise pixels are masked out, and remaining
// pixels are center-weighted so the garment in the middle of a crop
// dominates its edges.
func StyleSignature(img image.Image) Signature {
	rgb := resizeRGBA(img, sigSide, sigSide)

	type weighted struct {
		w       float64
		r, g, b uint8
		sat     float64
	}
	var px []weighted
	for y := 0; y < sigSide; y++ {
		for x := 0; x < sigSide; x++ {
			r, g, b := rgbAt(rgb, x, y)
			nx := float64(x)/(sigSide-1) - 0.5
			ny := float64(y)/(sigSide-1) - 0.5
			w := 1.0 - (nx*nx+ny*ny)*1.8
			if w < 0.2 {
				w = 0.2
			}
			if r > whiteCutoff && g > whiteCutoff && b > whiteCutoff {
				continue
			}
			if r < darkCutoff && g < darkCutoff && b < darkCutoff {
				continue
			}
			px = append(px, weighted{w: w, r: r, g: g, b: b, sat: saturation(r, g, b)})
		}
	}
	if len(px) == 0 {
		// Fully masked image: fall back to unweighted means over everything.
		for y := 0; y < sigSide; y++ {
			for x := 0; x < sigSide; x++ {
				r, g, b := rgbAt(rgb, x, y)
				px = append(px, weighted{w: 1, r: r, g: g, b: b, sat: saturation(r, g, b)})
			}
		}
	}

	var total, sumR, sumG, sumB, sumSat float64
	for _, p := range px {
		total += p.w
		sumR += float64(p.r) * p.w
		sumG += float64(p.g) * p.w
		sumB += float64(p.b) * p.w
		sumSat += p.sat * p.w
	}

	var edgeSum float64
	edges := edgeMagnitudes(rgb)
	for _, e := range edges {
		edgeSum += float64(e)
	}

	return Signature{
		MeanRGB: [3]float64{
			sumR / (255.0 * total),
			sumG / (255.0 * total),
			sumB / (255.0 * total),
		},
		Saturation:  sumSat / total,
		EdgeDensity: edgeSum / float64(len(edges)) / 255.0,
	}
}

// saturation is the HSV S channel of an 8-bit RGB pixel.
func saturation(r, g, b uint8) float64 {
	maxC := max3(r, g, b)
	if maxC == 0 {
		return 0
	}
	minC := min3(r, g, b)
	return float64(maxC-minC) / float64(maxC)
}

func max3(a, b, c uint8) uint8 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c uint8) uint8 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
