// Package jobs orchestrates the lookbook pipeline: ingest an uploaded
// photo, match catalog items against it, render the outfit video, and
// hand the result to the publisher or a human reviewer.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jwoolee/stylereel/internal/assets"
	"github.com/jwoolee/stylereel/internal/cache"
	"github.com/jwoolee/stylereel/internal/config"
	"github.com/jwoolee/stylereel/internal/match"
	"github.com/jwoolee/stylereel/internal/publish"
	"github.com/jwoolee/stylereel/internal/render"
	"github.com/jwoolee/stylereel/internal/state"
	"github.com/jwoolee/stylereel/pkg/models"
)

// Sentinel errors for handler status mapping.
var (
	ErrRerankUnavailable    = errors.New("rerank not available in current status")
	ErrNoCandidates         = errors.New("no rerank candidates found")
	ErrApproveUnavailable   = errors.New("approval only available for REVIEW_REQUIRED jobs")
	ErrRetryUnavailable     = errors.New("retry only available for FAILED jobs")
	ErrSourceImageMissing   = errors.New("source image not found for retry")
	ErrPublishNotConfigured = errors.New("youtube credentials are not configured")
	ErrVideoNotReady        = errors.New("rendered video not available")
	ErrUploadFailed         = errors.New("youtube upload failed")
)

const statusCacheTTL = time.Hour

// Service owns job state transitions. The pipeline runs in one goroutine
// per job; rerank and approve mutate the same record through the store
// lock.
type Service struct {
	store     *state.Store
	engine    *match.Engine
	storage   *assets.Storage
	renderer  render.Renderer
	publisher publish.Publisher
	cache     cache.Cache
	gate      Decider
	pipeline  config.PipelineConfig
	youtube   config.YouTubeConfig
	logger    *slog.Logger
	bootedAt  time.Time
}

func NewService(
	store *state.Store,
	engine *match.Engine,
	storage *assets.Storage,
	renderer render.Renderer,
	publisher publish.Publisher,
	c cache.Cache,
	gate Decider,
	pipeline config.PipelineConfig,
	youtube config.YouTubeConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:     store,
		engine:    engine,
		storage:   storage,
		renderer:  renderer,
		publisher: publisher,
		cache:     c,
		gate:      gate,
		pipeline:  pipeline,
		youtube:   youtube,
		logger:    logger,
		bootedAt:  time.Now(),
	}
}

// CreateParams carries everything needed to ingest one job.
type CreateParams struct {
	ImageData      []byte
	LookCount      int
	QualityMode    models.QualityMode
	TargetGender   models.Gender
	Theme          string
	Tone           string
	IdempotencyKey string
}

// Create ingests the upload and starts the pipeline. A replayed
// Idempotency-Key returns the previously created job untouched.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Job, error) {
	return s.create(ctx, p, nil, 1)
}

func (s *Service) create(ctx context.Context, p CreateParams, parent *uuid.UUID, attempts int) (*models.Job, error) {
	jobID := uuid.New()

	uploadPath, err := s.storage.SaveUpload(jobID, p.ImageData)
	if err != nil {
		return nil, err
	}
	if _, err := s.storage.WritePreview(jobID, uploadPath); err != nil {
		s.logger.Warn("write preview", "job_id", jobID, "error", err)
	}

	job := &models.Job{
		ID:              jobID,
		Status:          models.JobStatusIngested,
		QualityMode:     p.QualityMode,
		TargetGender:    p.TargetGender,
		LookCount:       p.LookCount,
		CreatedAt:       time.Now().UTC(),
		Progress:        5,
		Theme:           p.Theme,
		Tone:            p.Tone,
		ParentJobID:     parent,
		Attempts:        attempts,
		IdempotencyKey:  p.IdempotencyKey,
		UploadImagePath: uploadPath,
		UploadStatus:    models.UploadPending,
		Items:           []models.MatchItem{},
	}

	created, err := s.store.CreateJob(job, p.IdempotencyKey)
	if errors.Is(err, state.ErrIdempotencyConflict) {
		os.Remove(uploadPath)
		os.Remove(s.storage.PreviewPath(jobID))
		return created, nil
	}
	if err != nil {
		return nil, err
	}

	s.setCachedStatus(ctx, jobID, created.Status)
	s.logger.Info("job created",
		"job_id", jobID,
		"quality_mode", p.QualityMode,
		"look_count", p.LookCount,
		"target_gender", p.TargetGender,
		"attempts", attempts)

	go s.runPipeline(jobID)
	return created, nil
}

// Get returns the current job record.
func (s *Service) Get(_ context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(id)
}

// RerankResult is the outcome of a manual category rerank.
type RerankResult struct {
	JobID      uuid.UUID          `json:"job_id"`
	Category   string             `json:"category"`
	Candidates []models.MatchItem `json:"candidates"`
	Selected   models.MatchItem   `json:"selected"`
}

// Rerank recomputes candidates for one category and swaps the top pick
// into the job's outfit.
func (s *Service) Rerank(ctx context.Context, id uuid.UUID, category string, priceCap *int, colorHint string) (*RerankResult, error) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case models.JobStatusFailed, models.JobStatusIngested, models.JobStatusAnalyzed:
		return nil, ErrRerankUnavailable
	}

	candidates := s.engine.Candidates(ctx, job.UploadImagePath, category, priceCap, colorHint, job.TargetGender)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	selected := candidates[0]

	if _, err := s.store.UpdateJob(id, func(j *models.Job) error {
		for i := range j.Items {
			if j.Items[i].Category == category {
				j.Items[i] = *selected.Clone()
				return nil
			}
		}
		j.Items = append(j.Items, *selected.Clone())
		return nil
	}); err != nil {
		return nil, err
	}

	return &RerankResult{JobID: id, Category: category, Candidates: candidates, Selected: selected}, nil
}

// Approve moves a reviewed job to COMPLETED and attempts the upload.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	_, err := s.store.UpdateJob(id, func(j *models.Job) error {
		if j.Status != models.JobStatusReviewRequired {
			return ErrApproveUnavailable
		}
		now := time.Now().UTC()
		j.Status = models.JobStatusCompleted
		j.Progress = 100
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.setCachedStatus(ctx, id, models.JobStatusCompleted)

	s.attemptUpload(ctx, id, "")
	return s.store.GetJob(id)
}

// Retry clones a failed job into a fresh pipeline run. The new job
// re-reads the original upload and records its lineage.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusFailed {
		return nil, ErrRetryUnavailable
	}
	if job.UploadImagePath == "" {
		return nil, ErrSourceImageMissing
	}
	data, err := os.ReadFile(job.UploadImagePath)
	if err != nil {
		return nil, ErrSourceImageMissing
	}

	return s.create(ctx, CreateParams{
		ImageData:    data,
		LookCount:    job.LookCount,
		QualityMode:  job.QualityMode,
		TargetGender: job.TargetGender,
		Theme:        job.Theme,
		Tone:         job.Tone,
	}, &id, job.Attempts+1)
}

// Publish forces an upload attempt for a rendered job.
func (s *Service) Publish(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if !s.publisher.Configured() {
		return nil, ErrPublishNotConfigured
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	if job.VideoURL == "" {
		return nil, ErrVideoNotReady
	}

	s.attemptUpload(ctx, id, "")

	latest, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	if latest.UploadStatus != models.UploadUploaded || latest.YouTubeURL == "" {
		return nil, ErrUploadFailed
	}
	return latest, nil
}

// HistoryItem is one row of the job history listing.
type HistoryItem struct {
	JobID        uuid.UUID        `json:"job_id"`
	Status       models.JobStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
}

// History lists jobs newest first, up to limit.
func (s *Service) History(limit int) []HistoryItem {
	jobs := s.store.ListJobs()
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	items := make([]HistoryItem, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, HistoryItem{
			JobID:        j.ID,
			Status:       j.Status,
			CreatedAt:    j.CreatedAt,
			CompletedAt:  j.CompletedAt,
			ThumbnailURL: j.PreviewURL,
		})
	}
	return items
}

// Metrics summarizes pipeline throughput.
type Metrics struct {
	TotalJobsCreated     int     `json:"total_jobs_created"`
	TotalJobsCompleted   int     `json:"total_jobs_completed"`
	TotalJobsFailed      int     `json:"total_jobs_failed"`
	TotalJobsRetried     int     `json:"total_jobs_retried"`
	AvgProcessingSeconds float64 `json:"avg_processing_seconds"`
	TotalUploaded        int     `json:"total_youtube_uploaded"`
}

func (s *Service) Metrics() Metrics {
	jobs := s.store.ListJobs()

	m := Metrics{TotalJobsCreated: len(jobs)}
	var durations []float64
	for _, j := range jobs {
		switch j.Status {
		case models.JobStatusCompleted:
			m.TotalJobsCompleted++
		case models.JobStatusFailed:
			m.TotalJobsFailed++
		}
		if j.ParentJobID != nil {
			m.TotalJobsRetried++
		}
		if j.UploadStatus == models.UploadUploaded {
			m.TotalUploaded++
		}
		if j.CompletedAt != nil && !j.CompletedAt.Before(j.CreatedAt) {
			durations = append(durations, j.CompletedAt.Sub(j.CreatedAt).Seconds())
		}
	}
	if len(durations) > 0 {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		m.AvgProcessingSeconds = round3(sum / float64(len(durations)))
	}
	return m
}

// Health is the liveness payload.
type Health struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	TotalJobs     int    `json:"total_jobs"`
}

func (s *Service) Health() Health {
	return Health{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.bootedAt).Seconds()),
		TotalJobs:     len(s.store.ListJobs()),
	}
}

// runPipeline walks one job through the full lifecycle. Each transition
// re-reads the record under the store lock; rendering and uploading
// happen outside it.
func (s *Service) runPipeline(jobID uuid.UUID) {
	ctx := context.Background()

	time.Sleep(s.pipeline.StepDelay)
	if !s.advance(ctx, jobID, models.JobStatusAnalyzed, 20) {
		return
	}

	time.Sleep(s.pipeline.StepDelay)
	job, err := s.store.GetJob(jobID)
	if err != nil {
		return
	}
	effective := match.EffectiveLookCount(job.LookCount, nil)
	items, roiDebug := s.engine.Search(ctx, match.Params{
		UploadImagePath: job.UploadImagePath,
		LookCount:       job.LookCount,
		ColorHint:       firstNonEmpty(job.Tone, job.Theme),
		TargetGender:    job.TargetGender,
	})

	partial := len(items) < effective || effective >= 4
	if partial && len(items) > 0 {
		fc := models.FailureCrawlTimeout
		items[len(items)-1].FailureCode = &fc
	}
	matchedStatus := models.JobStatusMatched
	if partial {
		matchedStatus = models.JobStatusMatchedPartial
	}
	if _, err := s.store.UpdateJob(jobID, func(j *models.Job) error {
		j.Status = matchedStatus
		j.Progress = 45
		j.Items = items
		j.RoiDebug = roiDebug
		j.HadPartialMatch = partial
		j.PreviewURL = s.storage.PublicURL(s.storage.PreviewPath(jobID))
		return nil
	}); err != nil {
		return
	}
	s.setCachedStatus(ctx, jobID, matchedStatus)

	time.Sleep(s.pipeline.StepDelay)
	if !s.advance(ctx, jobID, models.JobStatusComposed, 70) {
		return
	}

	time.Sleep(s.pipeline.StepDelay)
	if !s.advance(ctx, jobID, models.JobStatusRendering, 85) {
		return
	}

	videoPath, err := s.renderer.Render(ctx, jobID, job.UploadImagePath)
	if err != nil {
		s.logger.Error("render failed", "job_id", jobID, "error", err)
		s.failJob(ctx, jobID, models.FailureRenderError, models.UploadFailed)
		return
	}

	var completed bool
	if _, err := s.store.UpdateJob(jobID, func(j *models.Job) error {
		now := time.Now().UTC()
		j.VideoURL = s.storage.PublicURL(videoPath)

		if j.QualityMode == models.QualityHumanReview {
			j.Status = models.JobStatusReviewRequired
			j.Progress = 95
			j.CompletedAt = &now
			return nil
		}

		if j.HadPartialMatch && s.gate.FailPartial() {
			fc := models.FailureEmptyResult
			j.Status = models.JobStatusFailed
			j.Progress = 100
			j.CompletedAt = &now
			j.FailureCode = &fc
			if len(j.Items) > 0 && allItemsClean(j.Items) {
				timeout := models.FailureCrawlTimeout
				j.Items[len(j.Items)-1].FailureCode = &timeout
			}
			j.UploadStatus = models.UploadSkipped
			return nil
		}

		if s.gate.FailRender() {
			fc := models.FailureRenderError
			j.Status = models.JobStatusFailed
			j.Progress = 100
			j.CompletedAt = &now
			j.FailureCode = &fc
			j.UploadStatus = models.UploadFailed
			return nil
		}

		j.Status = models.JobStatusCompleted
		j.Progress = 100
		j.CompletedAt = &now
		completed = true
		return nil
	}); err != nil {
		return
	}

	if latest, err := s.store.GetJob(jobID); err == nil {
		s.setCachedStatus(ctx, jobID, latest.Status)
		s.logger.Info("pipeline finished",
			"job_id", jobID,
			"status", latest.Status,
			"partial", latest.HadPartialMatch,
			"items", len(latest.Items))
	}

	if completed {
		s.attemptUpload(ctx, jobID, videoPath)
	}
}

// advance sets a mid-pipeline status and progress. Returns false when
// the job no longer exists.
func (s *Service) advance(ctx context.Context, jobID uuid.UUID, status models.JobStatus, progress int) bool {
	_, err := s.store.UpdateJob(jobID, func(j *models.Job) error {
		j.Status = status
		j.Progress = progress
		return nil
	})
	if err != nil {
		return false
	}
	s.setCachedStatus(ctx, jobID, status)
	return true
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, code models.FailureCode, upload models.UploadStatus) {
	_, err := s.store.UpdateJob(jobID, func(j *models.Job) error {
		now := time.Now().UTC()
		j.Status = models.JobStatusFailed
		j.Progress = 100
		j.CompletedAt = &now
		j.FailureCode = &code
		j.UploadStatus = upload
		return nil
	})
	if err == nil {
		s.setCachedStatus(ctx, jobID, models.JobStatusFailed)
	}
}

// attemptUpload publishes the rendered video when possible. Upload
// failures only fail the job itself when uploads are mandatory and the
// job is not parked for review.
func (s *Service) attemptUpload(ctx context.Context, jobID uuid.UUID, videoPath string) {
	job, err := s.store.GetJob(jobID)
	if err != nil {
		return
	}
	if job.UploadStatus == models.UploadUploaded || job.VideoURL == "" {
		return
	}

	if videoPath == "" {
		videoPath = s.storage.VideoPath(jobID)
	}
	if _, err := os.Stat(videoPath); err != nil {
		s.store.UpdateJob(jobID, func(j *models.Job) error {
			j.UploadStatus = models.UploadFailed
			if j.FailureCode == nil {
				fc := models.FailureRenderError
				j.FailureCode = &fc
			}
			return nil
		})
		return
	}

	if !s.publisher.Configured() {
		s.store.UpdateJob(jobID, func(j *models.Job) error {
			j.UploadStatus = models.UploadSkipped
			return nil
		})
		return
	}

	title := fmt.Sprintf("StyleReel Lookbook %s", jobID)
	result, err := s.publisher.Publish(ctx, videoPath, title, "Outfit recommendation reel generated by StyleReel")
	if err != nil {
		s.logger.Warn("upload failed", "job_id", jobID, "error", err)
		s.store.UpdateJob(jobID, func(j *models.Job) error {
			j.UploadStatus = models.UploadFailed
			if s.youtube.UploadRequired && j.Status != models.JobStatusReviewRequired {
				fc := models.FailureLicenseBlocked
				j.Status = models.JobStatusFailed
				j.FailureCode = &fc
			}
			return nil
		})
		return
	}

	s.store.UpdateJob(jobID, func(j *models.Job) error {
		j.YouTubeVideoID = result.VideoID
		j.YouTubeURL = result.URL
		j.UploadStatus = models.UploadUploaded
		return nil
	})
	s.logger.Info("video uploaded", "job_id", jobID, "video_id", result.VideoID)
}

func (s *Service) setCachedStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJobStatus(ctx, jobID, string(status), statusCacheTTL); err != nil {
		s.logger.Debug("cache job status", "job_id", jobID, "error", err)
	}
}

func allItemsClean(items []models.MatchItem) bool {
	for i := range items {
		if items[i].FailureCode != nil {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
