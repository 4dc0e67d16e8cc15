package handler

import (
	"context"
	"net/http"

	"github.com/dandantas/shopwatch/internal/model"
)

// RefreshService queues on-demand pipeline runs
type RefreshService interface {
	Submit(ctx context.Context, shopID string) (model.RefreshJob, error)
	Job(jobID string) (model.RefreshJob, bool)
}

// RefreshHandler handles on-demand refreshes and their job status
type RefreshHandler struct {
	service RefreshService
}

// NewRefreshHandler creates a new refresh handler
func NewRefreshHandler(service RefreshService) *RefreshHandler {
	return &RefreshHandler{service: service}
}

// Refresh handles POST /api/v1/shops/{id}/refresh
func (h *RefreshHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Submit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.JobID)
	writeJSON(w, http.StatusAccepted, job)
}

// Job handles GET /api/v1/jobs/{id}
func (h *RefreshHandler) Job(w http.ResponseWriter, r *http.Request) {
	job, ok := h.service.Job(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
