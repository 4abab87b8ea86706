package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the StyleReel server.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Redis    RedisConfig
	Qdrant   QdrantConfig
	Catalog  CatalogConfig
	YouTube  YouTubeConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type StorageConfig struct {
	StateFile     string
	AssetRoot     string
	PublicBaseURL string
}

type PipelineConfig struct {
	StepDelay        time.Duration
	RenderSeconds    float64
	EnableRealRender bool
}

type RedisConfig struct {
	URL string
}

type QdrantConfig struct {
	Enabled         bool
	URL             string
	Collection      string
	Timeout         time.Duration
	TopKMultiplier  int
	UpsertBatchSize int
}

type CatalogConfig struct {
	DiscoveryBaseURL      string
	SearchBaseURL         string
	CrawlTimeout          time.Duration
	EmbedTimeout          time.Duration
	MinImageSim           float64
	MinItemsPerCategory   int
	UseImageEmbedding     bool
	AllowSyntheticPadding bool
	DatasetExportEnabled  bool
	DatasetExportDirs     []string
}

type YouTubeConfig struct {
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	PrivacyStatus  string
	UploadRequired bool
}

// Load reads configuration from environment variables and returns a
// validated Config. Returns an error with a descriptive message if any
// value is invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("STYLEREEL_PORT", 8080),
			Env:  envString("STYLEREEL_ENV", "development"),
		},
		Storage: StorageConfig{
			StateFile:     envString("JOB_STATE_FILE", "./data/job_state.json"),
			AssetRoot:     envString("ASSET_ROOT", "./data/assets"),
			PublicBaseURL: strings.TrimRight(envString("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},
		Pipeline: PipelineConfig{
			StepDelay:        envDuration("PIPELINE_STEP_DELAY", 50*time.Millisecond),
			RenderSeconds:    envFloat("RENDER_SECONDS", 4),
			EnableRealRender: envBool("ENABLE_REAL_RENDER", true),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Qdrant: QdrantConfig{
			Enabled:         envBool("QDRANT_ENABLED", true),
			URL:             envString("QDRANT_URL", "http://qdrant:6333"),
			Collection:      envString("QDRANT_COLLECTION", "stylereel_catalog"),
			Timeout:         envDuration("QDRANT_TIMEOUT", 10*time.Second),
			TopKMultiplier:  envInt("QDRANT_TOPK_MULTIPLIER", 12),
			UpsertBatchSize: envInt("QDRANT_UPSERT_BATCH_SIZE", 200),
		},
		Catalog: CatalogConfig{
			DiscoveryBaseURL:      envString("CATALOG_DISCOVERY_BASE_URL", "https://api.musinsa.com/api2/dp/v1/plp/goods"),
			SearchBaseURL:         envString("CATALOG_SEARCH_BASE_URL", "https://www.musinsa.com"),
			CrawlTimeout:          envDuration("CATALOG_CRAWL_TIMEOUT", 10*time.Second),
			EmbedTimeout:          envDuration("CATALOG_EMBED_TIMEOUT", 4*time.Second),
			MinImageSim:           envFloat("CATALOG_MIN_IMAGE_SIM", 0.35),
			MinItemsPerCategory:   envInt("CATALOG_MIN_ITEMS_PER_CATEGORY", 300),
			UseImageEmbedding:     envBool("CATALOG_CRAWL_USE_IMAGE_EMBEDDING", true),
			AllowSyntheticPadding: envBool("CATALOG_ALLOW_SYNTHETIC_PADDING", false),
			DatasetExportEnabled:  envBool("CATALOG_DATASET_EXPORT_ENABLED", true),
			DatasetExportDirs:     splitDirs(envString("CATALOG_DATASET_EXPORT_DIRS", "datasets/catalog-jpg,data/datasets/catalog-jpg")),
		},
		YouTube: YouTubeConfig{
			ClientID:       os.Getenv("YOUTUBE_CLIENT_ID"),
			ClientSecret:   os.Getenv("YOUTUBE_CLIENT_SECRET"),
			RefreshToken:   os.Getenv("YOUTUBE_REFRESH_TOKEN"),
			PrivacyStatus:  envString("YOUTUBE_PRIVACY_STATUS", "unlisted"),
			UploadRequired: envBool("YOUTUBE_UPLOAD_REQUIRED", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("STYLEREEL_PORT must be in 1..65535, got %d", c.Server.Port)
	}

	if c.Storage.StateFile == "" {
		return fmt.Errorf("JOB_STATE_FILE must not be empty")
	}
	if c.Storage.AssetRoot == "" {
		return fmt.Errorf("ASSET_ROOT must not be empty")
	}

	if c.Qdrant.Enabled {
		if !strings.HasPrefix(c.Qdrant.URL, "http://") && !strings.HasPrefix(c.Qdrant.URL, "https://") {
			return fmt.Errorf("QDRANT_URL must start with http:// or https://, got %q", c.Qdrant.URL)
		}
	}

	if c.Catalog.MinImageSim < 0 || c.Catalog.MinImageSim > 1 {
		return fmt.Errorf("CATALOG_MIN_IMAGE_SIM must be in [0,1], got %v", c.Catalog.MinImageSim)
	}

	if c.Pipeline.RenderSeconds <= 0 {
		return fmt.Errorf("RENDER_SECONDS must be positive, got %v", c.Pipeline.RenderSeconds)
	}

	return nil
}

// YouTubeConfigured reports whether publish credentials are present.
func (c *Config) YouTubeConfigured() bool {
	return c.YouTube.ClientID != "" && c.YouTube.ClientSecret != "" && c.YouTube.RefreshToken != ""
}

func splitDirs(raw string) []string {
	var dirs []string
	for _, token := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(token); v != "" {
			dirs = append(dirs, v)
		}
	}
	return dirs
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
