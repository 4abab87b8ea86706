package handler

import (
	"net/http"
	"strconv"

	"github.com/jwoolee/stylereel/internal/api/response"
	"github.com/jwoolee/stylereel/internal/jobs"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// SystemHandler serves health, metrics, and history.
type SystemHandler struct {
	svc *jobs.Service
}

func NewSystemHandler(svc *jobs.Service) *SystemHandler {
	return &SystemHandler{svc: svc}
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.svc.Health())
}

func (h *SystemHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.svc.Metrics())
}

func (h *SystemHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	items := h.svc.History(limit)
	response.Collection(w, items, response.ListMeta{Limit: limit, Total: len(items)})
}
