package catalog

import (
	"encoding/csv"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jwoolee/stylereel/internal/vision"
	"github.com/jwoolee/stylereel/pkg/models"
)

var fileTokenRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ExportDatasets mirrors cached catalog thumbnails into each configured
// export directory as JPEGs, grouped by category, with a manifest.csv.
// Synthetic items and items without a cached thumbnail are skipped.
func (s *Service) ExportDatasets(items []*models.CatalogItem) {
	for _, dir := range s.cfg.DatasetExportDirs {
		if err := s.exportDataset(dir, items); err != nil {
			s.logger.Warn("dataset export failed", "dir", dir, "error", err)
		}
	}
}

func (s *Service) exportDataset(outputDir string, items []*models.CatalogItem) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	manifest, err := os.Create(filepath.Join(outputDir, "manifest.csv"))
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer manifest.Close()

	w := csv.NewWriter(manifest)
	defer w.Flush()
	if err := w.Write([]string{
		"product_id", "category", "brand", "product_name", "price",
		"product_url", "image_url", "cache_file", "export_file",
	}); err != nil {
		return err
	}

	rows := make([]*models.CatalogItem, len(items))
	copy(rows, items)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].ProductID < rows[j].ProductID
	})

	usedPaths := make(map[string]bool)
	for _, item := range rows {
		if IsFallbackItem(item.ProductID) {
			continue
		}
		cacheFile := s.crawler.storage.ThumbnailCachePath(item.ImageURL)
		data, err := readFileIfExists(cacheFile)
		if err != nil || len(data) == 0 {
			continue
		}
		img, err := vision.DecodeBytes(data)
		if err != nil {
			continue
		}

		categoryDir := filepath.Join(outputDir, safeFileToken(firstNonEmpty(item.Category, "unknown")))
		if err := os.MkdirAll(categoryDir, 0o755); err != nil {
			continue
		}

		stem := safeFileToken(item.ProductID)
		exportFile := filepath.Join(categoryDir, stem+".jpg")
		for suffix := 2; usedPaths[exportFile]; suffix++ {
			exportFile = filepath.Join(categoryDir, fmt.Sprintf("%s_%d.jpg", stem, suffix))
		}

		out, err := os.Create(exportFile)
		if err != nil {
			continue
		}
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 92})
		out.Close()
		if err != nil {
			os.Remove(exportFile)
			continue
		}
		usedPaths[exportFile] = true

		price := ""
		if item.Price != nil {
			price = fmt.Sprint(*item.Price)
		}
		_ = w.Write([]string{
			item.ProductID, item.Category, item.Brand, item.ProductName, price,
			item.ProductURL, item.ImageURL, cacheFile, exportFile,
		})
	}
	return nil
}

func safeFileToken(value string) string {
	token := fileTokenRe.ReplaceAllString(strings.TrimSpace(value), "_")
	if token == "" {
		return "item"
	}
	if len(token) > 120 {
		token = token[:120]
	}
	return token
}
