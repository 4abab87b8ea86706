package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwoolee/stylereel/internal/api"
	"github.com/jwoolee/stylereel/internal/api/handler"
	"github.com/jwoolee/stylereel/internal/assets"
	"github.com/jwoolee/stylereel/internal/cache"
	"github.com/jwoolee/stylereel/internal/catalog"
	"github.com/jwoolee/stylereel/internal/config"
	"github.com/jwoolee/stylereel/internal/jobs"
	"github.com/jwoolee/stylereel/internal/match"
	"github.com/jwoolee/stylereel/internal/publish"
	"github.com/jwoolee/stylereel/internal/render"
	"github.com/jwoolee/stylereel/internal/state"
	"github.com/jwoolee/stylereel/internal/vectorindex"
	"github.com/jwoolee/stylereel/internal/vision"
	"github.com/jwoolee/stylereel/pkg/models"
)

type testEnv struct {
	server *httptest.Server
	jobs   *jobs.Service
	store  *state.Store
}

func photoBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 120; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(40 + x), G: uint8(60 + y/2), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := state.Open(filepath.Join(t.TempDir(), "state.json"), logger)
	require.NoError(t, err)
	storage, err := assets.NewStorage(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)

	// Seed one item per required category so matching succeeds.
	photoPath := filepath.Join(t.TempDir(), "seed.png")
	require.NoError(t, os.WriteFile(photoPath, photoBytes(t), 0o644))
	img, err := vision.DecodeFile(photoPath)
	require.NoError(t, err)
	qf := vision.AnalyzeRegions(img)
	var items []*models.CatalogItem
	for i, cat := range []string{models.CategoryTop, models.CategoryBottom} {
		price := 39000 + i*10000
		items = append(items, &models.CatalogItem{
			ProductID:   cat + "-1",
			Category:    cat,
			Brand:       "TESTBRAND",
			ProductName: "남성 " + cat,
			ProductURL:  "https://www.musinsa.com/products/" + cat,
			ImageURL:    "https://image.msscdn.net/" + cat + ".jpg",
			Price:       &price,
			Gender:      models.GenderMen,
			Embedding:   append([]float64(nil), qf.Vectors[cat]...),
			UpdatedAt:   time.Now().UTC(),
		})
	}
	require.NoError(t, store.MergeCatalog(items, false))

	catalogCfg := config.CatalogConfig{
		MinImageSim:           0,
		UseImageEmbedding:     false,
		AllowSyntheticPadding: false,
	}
	engine := match.NewEngine(store, vectorindex.Noop{}, storage, catalogCfg, 12, logger)
	crawler := catalog.NewCrawler(catalogCfg, storage, cache.NewMemory(), logger)
	catalogSvc := catalog.NewService(store, crawler, vectorindex.Noop{}, catalogCfg, logger)

	jobSvc := jobs.NewService(
		store,
		engine,
		storage,
		render.NewStubRenderer(storage),
		publish.Noop{},
		cache.NewMemory(),
		jobs.StaticGate{},
		config.PipelineConfig{StepDelay: time.Millisecond, RenderSeconds: 1},
		config.YouTubeConfig{},
		logger,
	)

	jh := handler.NewJobHandler(jobSvc)
	ch := handler.NewCatalogHandler(catalogSvc)
	sh := handler.NewSystemHandler(jobSvc)

	router := api.NewRouter(api.Dependencies{
		CreateJob:    jh.Create,
		GetJob:       jh.Get,
		RerankJob:    jh.Rerank,
		ApproveJob:   jh.Approve,
		RetryJob:     jh.Retry,
		PublishJob:   jh.Publish,
		StartCrawl:   ch.StartCrawl,
		GetCrawlJob:  ch.GetCrawlJob,
		RebuildIndex: ch.RebuildIndex,
		CatalogStats: ch.Stats,
		History:      sh.History,
		Health:       sh.Health,
		Metrics:      sh.Metrics,
		AssetRoot:    storage.Root(),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{server: server, jobs: jobSvc, store: store}
}

func multipartUpload(t *testing.T, image []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="photo.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(image)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has a data envelope")
	return data
}

func TestCreateJobAccepted(t *testing.T) {
	env := newEnv(t)

	buf, contentType := multipartUpload(t, photoBytes(t), map[string]string{
		"look_count":    "2",
		"quality_mode":  "auto_gate",
		"target_gender": "men",
	})
	resp, err := http.Post(env.server.URL+"/v1/jobs", contentType, buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	data := decodeData(t, resp)
	assert.Equal(t, "INGESTED", data["status"])
	assert.Equal(t, float64(2), data["estimated_seconds"])
	_, err = uuid.Parse(data["job_id"].(string))
	assert.NoError(t, err)
}

func TestCreateJobIdempotencyHeader(t *testing.T) {
	env := newEnv(t)

	send := func() string {
		buf, contentType := multipartUpload(t, photoBytes(t), map[string]string{
			"look_count":   "2",
			"quality_mode": "auto_gate",
		})
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/jobs", buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Idempotency-Key", "same-key")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		return decodeData(t, resp)["job_id"].(string)
	}

	assert.Equal(t, send(), send())
}

func TestCreateJobValidation(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		name   string
		image  []byte
		fields map[string]string
	}{
		{"bad look_count", photoBytes(t), map[string]string{"look_count": "9", "quality_mode": "auto_gate"}},
		{"bad quality_mode", photoBytes(t), map[string]string{"look_count": "2", "quality_mode": "warp"}},
		{"bad target_gender", photoBytes(t), map[string]string{"look_count": "2", "quality_mode": "auto_gate", "target_gender": "robots"}},
		{"not an image", []byte("plain text"), map[string]string{"look_count": "2", "quality_mode": "auto_gate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, contentType := multipartUpload(t, tt.image, tt.fields)
			resp, err := http.Post(env.server.URL+"/v1/jobs", contentType, buf)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		})
	}
}

func TestCreateJobTooLarge(t *testing.T) {
	env := newEnv(t)

	huge := make([]byte, 11*1024*1024)
	buf, contentType := multipartUpload(t, huge, map[string]string{
		"look_count":   "2",
		"quality_mode": "auto_gate",
	})
	resp, err := http.Post(env.server.URL+"/v1/jobs", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestGetJobNotFoundAndBadID(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.server.URL + "/v1/jobs/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(env.server.URL + "/v1/jobs/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRerankConflictBeforeMatching(t *testing.T) {
	env := newEnv(t)

	job := &models.Job{ID: uuid.New(), Status: models.JobStatusIngested, CreatedAt: time.Now().UTC()}
	_, err := env.store.CreateJob(job, "")
	require.NoError(t, err)

	body := strings.NewReader(`{"category":"top"}`)
	resp, err := http.Post(env.server.URL+"/v1/jobs/"+job.ID.String()+"/rerank", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRerankRejectsUnknownCategory(t *testing.T) {
	env := newEnv(t)

	body := strings.NewReader(`{"category":"hat"}`)
	resp, err := http.Post(env.server.URL+"/v1/jobs/"+uuid.NewString()+"/rerank", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPublishWithoutCredentialsConflicts(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Post(env.server.URL+"/v1/jobs/"+uuid.NewString()+"/publish", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	env := newEnv(t)

	buf, contentType := multipartUpload(t, photoBytes(t), map[string]string{
		"look_count":    "2",
		"quality_mode":  "auto_gate",
		"target_gender": "men",
	})
	resp, err := http.Post(env.server.URL+"/v1/jobs", contentType, buf)
	require.NoError(t, err)
	jobID := decodeData(t, resp)["job_id"].(string)

	var final map[string]any
	require.Eventually(t, func() bool {
		resp, err := http.Get(env.server.URL + "/v1/jobs/" + jobID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		data, ok := body["data"].(map[string]any)
		if !ok {
			return false
		}
		final = data
		status, _ := data["status"].(string)
		return status == "COMPLETED" || status == "FAILED"
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "COMPLETED", final["status"])
	assert.Equal(t, float64(100), final["progress"])
	assert.Contains(t, final["video_url"], "/assets/videos/")
	items := final["items"].([]any)
	assert.Len(t, items, 2)
}

func TestHistoryAndMetricsEndpoints(t *testing.T) {
	env := newEnv(t)

	_, err := env.jobs.Create(context.Background(), jobs.CreateParams{
		ImageData:    photoBytes(t),
		LookCount:    2,
		QualityMode:  models.QualityAutoGate,
		TargetGender: models.GenderMen,
	})
	require.NoError(t, err)

	resp, err := http.Get(env.server.URL + "/v1/history?limit=5")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, float64(5), body["meta"].(map[string]any)["limit"])
	assert.Len(t, body["data"].([]any), 1)

	resp, err = http.Get(env.server.URL + "/v1/metrics")
	require.NoError(t, err)
	data := decodeData(t, resp)
	assert.Equal(t, float64(1), data["total_jobs_created"])

	resp, err = http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	data = decodeData(t, resp)
	assert.Equal(t, "ok", data["status"])
}

func TestCatalogStatsAndCrawlJobNotFound(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.server.URL + "/v1/catalog/stats")
	require.NoError(t, err)
	data := decodeData(t, resp)
	assert.Equal(t, float64(2), data["total_products"])

	resp, err = http.Get(env.server.URL + "/v1/catalog/crawl/jobs/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAssetsAreServed(t *testing.T) {
	env := newEnv(t)

	buf, contentType := multipartUpload(t, photoBytes(t), map[string]string{
		"look_count":   "2",
		"quality_mode": "auto_gate",
	})
	resp, err := http.Post(env.server.URL+"/v1/jobs", contentType, buf)
	require.NoError(t, err)
	jobID := decodeData(t, resp)["job_id"].(string)

	resp, err = http.Get(env.server.URL + "/assets/previews/" + jobID + ".jpg")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
