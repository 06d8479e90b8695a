package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/lmsbridge/internal/api/response"
	"github.com/kiranshivaraju/lmsbridge/internal/batch"
	"github.com/kiranshivaraju/lmsbridge/pkg/models"
)

// Jobs defines the service calls the job handlers depend on.
type Jobs interface {
	Submit(ctx context.Context, req batch.SubmitRequest) (uuid.UUID, error)
	Status(ctx context.Context, jobID uuid.UUID) (*batch.JobStatus, error)
	Entries(ctx context.Context, jobID uuid.UUID, filter batch.EntryFilter) ([]*models.RowAuditEntry, int, error)
	Recent(ctx context.Context, limit int) ([]*models.BatchJob, error)
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewSubmitHandler(svc Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AnalysisID *uuid.UUID `json:"analysis_id"`
			Operation  string     `json:"operation"`
			Table      string     `json:"table"`
			Filename   string     `json:"filename"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid JSON body")
			return
		}

		if req.AnalysisID == nil {
			if req.Operation == "" {
				response.BadRequest(w, "analysis_id or operation is required")
				return
			}
			if req.Table == "" {
				response.BadRequest(w, "table is required")
				return
			}
		}

		jobID, err := svc.Submit(r.Context(), batch.SubmitRequest{
			AnalysisID: req.AnalysisID,
			Filename:   req.Filename,
			Operation:  req.Operation,
			Table:      req.Table,
		})
		if err != nil {
			switch {
			case errors.Is(err, batch.ErrAnalysisNotFound):
				response.Error(w, http.StatusNotFound, response.CodeAnalysisNotFound,
					"Analysis not found or expired", nil)
			case errors.Is(err, batch.ErrInvalidSubmission):
				response.BadRequest(w, err.Error())
			default:
				slog.Error("submit job failed", "error", err)
				response.Internal(w, "An unexpected error occurred")
			}
			return
		}

		response.Accepted(w, map[string]any{
			"job_id": jobID,
			"status": models.JobStatusCreated,
		})
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(w, r, "limit", batch.DefaultRecentLimit)
		if !ok {
			return
		}

		jobs, err := svc.Recent(r.Context(), limit)
		if err != nil {
			slog.Error("list jobs failed", "error", err)
			response.Internal(w, "An unexpected error occurred")
			return
		}
		response.JSON(w, jobs)
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobStatusHandler(svc Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := pathJobID(w, r)
		if !ok {
			return
		}

		status, err := svc.Status(r.Context(), jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, status)
	}
}

// NewJobEntriesHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/entries.
func NewJobEntriesHandler(svc Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := pathJobID(w, r)
		if !ok {
			return
		}
		page, ok := queryInt(w, r, "page", 1)
		if !ok {
			return
		}
		limit, ok := queryInt(w, r, "limit", batch.DefaultEntryLimit)
		if !ok {
			return
		}
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = batch.DefaultEntryLimit
		}
		if limit > batch.MaxEntryLimit {
			limit = batch.MaxEntryLimit
		}

		entries, total, err := svc.Entries(r.Context(), jobID, batch.EntryFilter{
			Status: r.URL.Query().Get("status"),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			writeJobError(w, err)
			return
		}
		if entries == nil {
			entries = []*models.RowAuditEntry{}
		}

		response.Collection(w, entries, response.Page(page, limit, total))
	}
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, batch.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, response.CodeJobNotFound, "Job not found", nil)
	case errors.Is(err, batch.ErrInvalidFilter):
		response.BadRequest(w, err.Error())
	default:
		slog.Error("job lookup failed", "error", err)
		response.Internal(w, "An unexpected error occurred")
	}
}

func pathJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.BadRequest(w, "jobID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		response.BadRequest(w, name+" must be an integer")
		return 0, false
	}
	return n, true
}
