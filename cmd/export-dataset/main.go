// Package main exports the cached catalog thumbnails as a JPEG dataset
// with a manifest, for offline model experiments.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/jwoolee/stylereel/internal/assets"
	"github.com/jwoolee/stylereel/internal/cache"
	"github.com/jwoolee/stylereel/internal/catalog"
	"github.com/jwoolee/stylereel/internal/config"
	"github.com/jwoolee/stylereel/internal/state"
	"github.com/jwoolee/stylereel/internal/vectorindex"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("export failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	outDirs := flag.String("out", "", "comma-separated export directories (default: CATALOG_DATASET_EXPORT_DIRS)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *outDirs != "" {
		cfg.Catalog.DatasetExportDirs = nil
		for _, dir := range strings.Split(*outDirs, ",") {
			if v := strings.TrimSpace(dir); v != "" {
				cfg.Catalog.DatasetExportDirs = append(cfg.Catalog.DatasetExportDirs, v)
			}
		}
	}
	if len(cfg.Catalog.DatasetExportDirs) == 0 {
		return fmt.Errorf("no export directories configured")
	}

	store, err := state.Open(cfg.Storage.StateFile, logger)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	storage, err := assets.NewStorage(cfg.Storage.AssetRoot, cfg.Storage.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("init asset storage: %w", err)
	}

	items := store.CatalogItems()
	if len(items) == 0 {
		return fmt.Errorf("catalog is empty, run a crawl first")
	}

	crawler := catalog.NewCrawler(cfg.Catalog, storage, cache.NewMemory(), logger)
	svc := catalog.NewService(store, crawler, vectorindex.Noop{}, cfg.Catalog, logger)
	svc.ExportDatasets(items)

	slog.Info("export finished", "items", len(items), "dirs", cfg.Catalog.DatasetExportDirs)
	return nil
}
