package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/demolens/internal/analysis"
	"github.com/kiranshivaraju/demolens/internal/api/response"
	"github.com/kiranshivaraju/demolens/pkg/models"
)

const maxRequestBody = 64 << 10

// JobService defines what the analysis handlers depend on.
type JobService interface {
	CreateJob(ctx context.Context, userID, dataURL string) (*models.AnalysisJob, error)
	GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error)
	GetStatus(ctx context.Context, jobID string) (string, error)
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/analysis.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID  string `json:"userId"`
			DataURL string `json:"dataUrl"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		job, err := svc.CreateJob(r.Context(), req.UserID, req.DataURL)
		if err != nil {
			if errors.Is(err, analysis.ErrInvalidRequest) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			slog.Error("create analysis job", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Created(w, job)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/analysis/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := svc.GetJob(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeLookupError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewGetStatusHandler returns an http.HandlerFunc for GET /api/v1/analysis/{jobID}/status.
// The status may come from the cache and lag the store briefly.
func NewGetStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		status, err := svc.GetStatus(r.Context(), jobID)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		response.JSON(w, statusResponse{JobID: jobID, Status: status})
	}
}

type statusResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, analysis.ErrJobNotFound) {
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Analysis job not found", nil)
		return
	}
	slog.Error("read analysis job", "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"An unexpected error occurred", nil)
}
