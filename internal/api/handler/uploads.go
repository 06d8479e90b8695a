package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lmsbridge/internal/api/response"
	"github.com/kiranshivaraju/lmsbridge/internal/batch"
	"github.com/kiranshivaraju/lmsbridge/internal/ingest"
	"github.com/kiranshivaraju/lmsbridge/pkg/models"
)

const uploadField = "file"

// Uploader defines the service calls the upload handlers depend on.
type Uploader interface {
	Analyze(ctx context.Context, filename string, data []byte) (ingest.Result, *uuid.UUID, error)
	AnalyzeAndSubmit(ctx context.Context, filename string, data []byte) (ingest.Result, uuid.UUID, error)
}

type analyzeResponse struct {
	ingest.Result
	AnalysisID *uuid.UUID `json:"analysis_id"`
}

type uploadResponse struct {
	JobID     uuid.UUID             `json:"job_id"`
	Operation *models.OperationKind `json:"operation"`
	Filename  string                `json:"filename"`
	TotalRows int                   `json:"total_rows"`
	Summary   string                `json:"summary"`
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /api/v1/uploads/analyze.
// A valid upload is staged and its analysis_id returned for confirmation.
func NewAnalyzeHandler(svc Uploader, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, data, ok := readUpload(w, r, maxBytes)
		if !ok {
			return
		}

		result, analysisID, err := svc.Analyze(r.Context(), filename, data)
		if err != nil {
			slog.Error("staging analysis failed", "filename", filename, "error", err)
			response.Internal(w, "An unexpected error occurred")
			return
		}
		if !result.Valid {
			rejectUpload(w, result)
			return
		}

		response.JSON(w, analyzeResponse{Result: result, AnalysisID: analysisID})
	}
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/uploads. The
// upload is analysed and queued in one step.
func NewUploadHandler(svc Uploader, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, data, ok := readUpload(w, r, maxBytes)
		if !ok {
			return
		}

		result, jobID, err := svc.AnalyzeAndSubmit(r.Context(), filename, data)
		if err != nil {
			if errors.Is(err, batch.ErrInvalidSubmission) && !result.Valid {
				rejectUpload(w, result)
				return
			}
			slog.Error("queueing upload failed", "filename", filename, "error", err)
			response.Internal(w, "An unexpected error occurred")
			return
		}

		response.Accepted(w, uploadResponse{
			JobID:     jobID,
			Operation: result.Operation,
			Filename:  result.Filename,
			TotalRows: result.TotalRows,
			Summary:   result.Summary,
		})
	}
}

// readUpload extracts the multipart file. It writes the error response
// itself and reports false when the request is unusable.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge,
				fmt.Sprintf("Upload exceeds the %d byte limit", maxBytes), nil)
			return "", nil, false
		}
		response.BadRequest(w, "multipart field \"file\" is required")
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "Could not read upload")
		return "", nil, false
	}
	return header.Filename, data, true
}

func rejectUpload(w http.ResponseWriter, result ingest.Result) {
	msg := "The file could not be processed"
	if result.Error != nil {
		msg = *result.Error
	}
	response.Error(w, http.StatusUnprocessableEntity, response.CodeIngestError, msg, map[string]any{
		"filename": result.Filename,
		"columns":  result.Columns,
	})
}
