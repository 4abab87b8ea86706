// Package assets manages on-disk artifacts: uploaded photos, composed
// previews, rendered videos, and cached catalog thumbnails. Paths under
// the asset root are served verbatim at /assets.
package assets

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrNotImage is returned when an upload's sniffed content is not a
// supported image format.
var ErrNotImage = errors.New("upload is not a supported image")

var extByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Storage lays out the asset root:
//
//	uploads/        source photos, one per job
//	previews/       composed preview frames
//	videos/         rendered mp4 files
//	catalog-cache/  downloaded product thumbnails
type Storage struct {
	root          string
	publicBaseURL string
}

func NewStorage(root, publicBaseURL string) (*Storage, error) {
	s := &Storage{root: root, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
	for _, dir := range []string{s.UploadsDir(), s.PreviewsDir(), s.VideosDir(), s.CatalogCacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create asset dir %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Storage) Root() string            { return s.root }
func (s *Storage) UploadsDir() string      { return filepath.Join(s.root, "uploads") }
func (s *Storage) PreviewsDir() string     { return filepath.Join(s.root, "previews") }
func (s *Storage) VideosDir() string       { return filepath.Join(s.root, "videos") }
func (s *Storage) CatalogCacheDir() string { return filepath.Join(s.root, "catalog-cache") }

// SaveUpload sniffs the payload, rejects non-image content, and writes it
// under uploads/ named by job ID with the extension matching the sniffed
// type.
func (s *Storage) SaveUpload(jobID uuid.UUID, data []byte) (string, error) {
	mt := mimetype.Detect(data)
	ext, ok := extByMIME[mt.String()]
	if !ok {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}

	path := filepath.Join(s.UploadsDir(), jobID.String()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

// WritePreview copies the job's source photo into previews/ so the preview
// URL stays valid even if the upload is later cleaned up. The preview is
// always named <job>.jpg to keep preview URLs predictable.
func (s *Storage) WritePreview(jobID uuid.UUID, uploadPath string) (string, error) {
	src, err := os.Open(uploadPath)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	path := s.PreviewPath(jobID)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create preview: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("copy preview: %w", err)
	}
	return path, nil
}

// PreviewPath is where a job's preview frame lives.
func (s *Storage) PreviewPath(jobID uuid.UUID) string {
	return filepath.Join(s.PreviewsDir(), jobID.String()+".jpg")
}

// VideoPath is where the renderer writes a job's output.
func (s *Storage) VideoPath(jobID uuid.UUID) string {
	return filepath.Join(s.VideosDir(), jobID.String()+".mp4")
}

// ThumbnailCachePath maps a product image URL onto a stable cache file.
func (s *Storage) ThumbnailCachePath(imageURL string) string {
	return filepath.Join(s.CatalogCacheDir(), ProductIDFromURL(imageURL)+".img")
}

// PublicURL converts an asset path into its externally reachable URL, or
// returns "" for paths outside the asset root.
func (s *Storage) PublicURL(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return s.publicBaseURL + "/assets/" + filepath.ToSlash(rel)
}

// ProductIDFromURL derives a filesystem-safe identifier from an image URL.
// Goods CDN paths end in /<product_id>.jpg so the basename usually is the
// product ID; anything unsafe is percent-stripped.
func ProductIDFromURL(imageURL string) string {
	u, err := url.Parse(imageURL)
	base := imageURL
	if err == nil && u.Path != "" {
		base = u.Path
	}
	base = strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
