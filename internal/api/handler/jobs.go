package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jwoolee/stylereel/internal/api/response"
	"github.com/jwoolee/stylereel/internal/jobs"
	"github.com/jwoolee/stylereel/pkg/models"
)

const maxUploadBytes = 10 * 1024 * 1024

// JobHandler serves the /v1/jobs endpoints.
type JobHandler struct {
	svc *jobs.Service
}

func NewJobHandler(svc *jobs.Service) *JobHandler {
	return &JobHandler{svc: svc}
}

type createJobResponse struct {
	JobID            uuid.UUID        `json:"job_id"`
	Status           models.JobStatus `json:"status"`
	EstimatedSeconds int              `json:"estimated_seconds"`
}

// Create ingests a multipart photo upload and starts the pipeline.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	// Leave headroom over the image limit for the multipart framing.
	const maxRequestBytes = maxUploadBytes + 1<<20
	if r.ContentLength > maxRequestBytes {
		response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "image too large (max 10MB)", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(maxRequestBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "image too large (max 10MB)", nil)
			return
		}
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid multipart form", nil)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "image file is required", nil)
		return
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "image content type must be image/*", nil)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "could not read image", nil)
		return
	}
	if len(data) > maxUploadBytes {
		response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "image too large (max 10MB)", nil)
		return
	}

	lookCount, err := strconv.Atoi(r.FormValue("look_count"))
	if err != nil || lookCount < 1 || lookCount > 5 {
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "look_count must be between 1 and 5", nil)
		return
	}
	qualityMode, ok := models.ParseQualityMode(r.FormValue("quality_mode"))
	if !ok {
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "quality_mode must be auto_gate or human_review", nil)
		return
	}
	targetGender := models.GenderUnisex
	if raw := r.FormValue("target_gender"); raw != "" {
		targetGender, ok = models.ParseGender(raw)
		if !ok {
			response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "target_gender must be men, women or unisex", nil)
			return
		}
	}

	job, err := h.svc.Create(r.Context(), jobs.CreateParams{
		ImageData:      data,
		LookCount:      lookCount,
		QualityMode:    qualityMode,
		TargetGender:   targetGender,
		Theme:          r.FormValue("theme"),
		Tone:           r.FormValue("tone"),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		serviceError(w, err)
		return
	}

	response.Accepted(w, createJobResponse{
		JobID:            job.ID,
		Status:           job.Status,
		EstimatedSeconds: 2,
	})
}

// Get returns the full job record.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	response.JSON(w, job)
}

type rerankRequest struct {
	Category  string `json:"category"`
	PriceCap  *int   `json:"price_cap"`
	ColorHint string `json:"color_hint"`
}

// Rerank swaps one category's pick for the best fresh candidate.
func (h *JobHandler) Rerank(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	var req rerankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}
	if !validCategory(req.Category) {
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "category must be one of top, bottom, outer, shoes, bag", nil)
		return
	}

	result, err := h.svc.Rerank(r.Context(), id, req.Category, req.PriceCap, req.ColorHint)
	if err != nil {
		serviceError(w, err)
		return
	}
	response.JSON(w, result)
}

// Approve completes a job parked in REVIEW_REQUIRED.
func (h *JobHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Approve(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	response.JSON(w, map[string]any{
		"job_id":    job.ID,
		"status":    job.Status,
		"video_url": job.VideoURL,
	})
}

// Retry clones a failed job into a new pipeline run.
func (h *JobHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Retry(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	response.Accepted(w, map[string]any{
		"previous_job_id": id,
		"new_job_id":      job.ID,
		"status":          job.Status,
	})
}

// Publish force-uploads the rendered video.
func (h *JobHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Publish(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	response.JSON(w, map[string]any{
		"job_id":                job.ID,
		"youtube_video_id":      job.YouTubeVideoID,
		"youtube_url":           job.YouTubeURL,
		"youtube_upload_status": job.UploadStatus,
	})
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "job id must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func validCategory(category string) bool {
	for _, c := range models.Categories {
		if c == category {
			return true
		}
	}
	return false
}
