// Package handler implements the HTTP endpoints over the job and catalog
// services.
package handler

import (
	"errors"
	"net/http"

	"github.com/jwoolee/stylereel/internal/api/response"
	"github.com/jwoolee/stylereel/internal/assets"
	"github.com/jwoolee/stylereel/internal/jobs"
	"github.com/jwoolee/stylereel/internal/state"
)

// serviceError maps service sentinel errors onto HTTP statuses.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, state.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "job not found", nil)
	case errors.Is(err, assets.ErrNotImage):
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "uploaded file is not an image", nil)
	case errors.Is(err, jobs.ErrRerankUnavailable),
		errors.Is(err, jobs.ErrNoCandidates),
		errors.Is(err, jobs.ErrApproveUnavailable),
		errors.Is(err, jobs.ErrRetryUnavailable),
		errors.Is(err, jobs.ErrSourceImageMissing),
		errors.Is(err, jobs.ErrPublishNotConfigured),
		errors.Is(err, jobs.ErrVideoNotReady):
		response.Error(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, jobs.ErrUploadFailed):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
