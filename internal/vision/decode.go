// Package vision derives deterministic visual features from photos: a
// histogram+spatial+edge embedding vector, a coarse style signature, and
// per-body-region crops of an uploaded outfit photo.
package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DecodeFile reads and decodes an image from disk. JPEG, PNG, GIF and WebP
// are supported.
func DecodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an in-memory encoded image.
func DecodeBytes(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// resizeRGBA scales img to w×h. Approximate bi-linear is plenty for
// histogram features and keeps the extractor fast.
func resizeRGBA(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}

// rgbAt returns 8-bit channel values for a pixel of an RGBA image.
func rgbAt(img *image.RGBA, x, y int) (uint8, uint8, uint8) {
	i := img.PixOffset(x, y)
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}
