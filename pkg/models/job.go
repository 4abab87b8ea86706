package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a lookbook job.
type JobStatus string

const (
	JobStatusIngested       JobStatus = "INGESTED"
	JobStatusAnalyzed       JobStatus = "ANALYZED"
	JobStatusMatched        JobStatus = "MATCHED"
	JobStatusMatchedPartial JobStatus = "MATCHED_PARTIAL"
	JobStatusComposed       JobStatus = "COMPOSED"
	JobStatusRendering      JobStatus = "RENDERING"
	JobStatusReviewRequired JobStatus = "REVIEW_REQUIRED"
	JobStatusCompleted      JobStatus = "COMPLETED"
	JobStatusFailed         JobStatus = "FAILED"
)

// Terminal reports whether the status admits no further pipeline
// transitions. REVIEW_REQUIRED is terminal-pending: only an explicit
// approval moves it on.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// QualityMode controls whether a rendered job completes automatically or
// waits for human approval.
type QualityMode string

const (
	QualityAutoGate    QualityMode = "auto_gate"
	QualityHumanReview QualityMode = "human_review"
)

func ParseQualityMode(s string) (QualityMode, bool) {
	switch QualityMode(s) {
	case QualityAutoGate, QualityHumanReview:
		return QualityMode(s), true
	}
	return "", false
}

// Gender is used both for the requested target audience of a job and for
// the inferred gender of a catalog item.
type Gender string

const (
	GenderMen    Gender = "men"
	GenderWomen  Gender = "women"
	GenderUnisex Gender = "unisex"
)

func ParseGender(s string) (Gender, bool) {
	switch Gender(s) {
	case GenderMen, GenderWomen, GenderUnisex:
		return Gender(s), true
	}
	return "", false
}

// FailureCode classifies terminal pipeline failures and degraded items.
type FailureCode string

const (
	FailureCrawlTimeout   FailureCode = "CRAWL_TIMEOUT"
	FailureEmptyResult    FailureCode = "EMPTY_RESULT"
	FailureRenderError    FailureCode = "RENDER_ERROR"
	FailureSafetyBlocked  FailureCode = "SAFETY_BLOCKED"
	FailureLicenseBlocked FailureCode = "LICENSE_BLOCKED"
)

// UploadStatus tracks the publish attempt for a rendered video.
type UploadStatus string

const (
	UploadPending  UploadStatus = "PENDING"
	UploadUploaded UploadStatus = "UPLOADED"
	UploadSkipped  UploadStatus = "SKIPPED"
	UploadFailed   UploadStatus = "FAILED"
)

// Job is one user request: a single uploaded photo turned into an outfit
// recommendation video. Jobs are append-only history; they are mutated
// only by the pipeline goroutine and by rerank/approve under the store
// lock, and never deleted.
type Job struct {
	ID              uuid.UUID            `json:"job_id"`
	Status          JobStatus            `json:"status"`
	QualityMode     QualityMode          `json:"quality_mode"`
	TargetGender    Gender               `json:"target_gender"`
	LookCount       int                  `json:"look_count"`
	CreatedAt       time.Time            `json:"created_at"`
	CompletedAt     *time.Time           `json:"completed_at"`
	Progress        int                  `json:"progress"`
	Theme           string               `json:"theme,omitempty"`
	Tone            string               `json:"tone,omitempty"`
	Items           []MatchItem          `json:"items"`
	PreviewURL      string               `json:"preview_url,omitempty"`
	VideoURL        string               `json:"video_url,omitempty"`
	FailureCode     *FailureCode         `json:"failure_code"`
	HadPartialMatch bool                 `json:"had_partial_match"`
	ParentJobID     *uuid.UUID           `json:"parent_job_id"`
	Attempts        int                  `json:"attempts"`
	IdempotencyKey  string               `json:"idempotency_key,omitempty"`
	UploadImagePath string               `json:"upload_image_path,omitempty"`
	YouTubeVideoID  string               `json:"youtube_video_id,omitempty"`
	YouTubeURL      string               `json:"youtube_url,omitempty"`
	UploadStatus    UploadStatus         `json:"youtube_upload_status"`
	RoiDebug        map[string]RoiRegion `json:"roi_debug,omitempty"`
}

// Clone returns a deep copy so callers can read job state outside the
// store lock without aliasing the stored record.
func (j *Job) Clone() *Job {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.FailureCode != nil {
		fc := *j.FailureCode
		c.FailureCode = &fc
	}
	if j.ParentJobID != nil {
		id := *j.ParentJobID
		c.ParentJobID = &id
	}
	if j.Items != nil {
		c.Items = make([]MatchItem, len(j.Items))
		for i := range j.Items {
			c.Items[i] = *j.Items[i].Clone()
		}
	}
	if j.RoiDebug != nil {
		c.RoiDebug = make(map[string]RoiRegion, len(j.RoiDebug))
		for k, v := range j.RoiDebug {
			v.BBox = append([]float64(nil), v.BBox...)
			c.RoiDebug[k] = v
		}
	}
	return &c
}
