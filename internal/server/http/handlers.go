package httpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/observability"
)

// Multipart form field names.
const (
	formFieldFile            = "file"
	formFieldContactEmail    = "contact_email"
	formFieldWebhookCallback = "webhook_callback"
)

// uploadSpreadsheet handles POST /api/v1/jobs.
func (s *Server) uploadSpreadsheet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "request must be multipart/form-data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	job, err := s.jobs.CSVUpload(r.Context(), file, header.Filename,
		r.FormValue(formFieldContactEmail), r.FormValue(formFieldWebhookCallback))
	if err != nil {
		s.logUnexpected(r, err, "upload failed")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		ID:          job.ID.String(),
		Status:      string(job.Status),
		ProgressURL: fmt.Sprintf("/api/v1/jobs/%s/progress", job.ID),
	})
}

// getProgress handles GET /api/v1/jobs/{jobID}/progress.
func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}

	progress, err := s.jobs.Progress(r.Context(), jobID)
	if err != nil {
		s.logUnexpected(r, err, "progress lookup failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// downloadCSV handles GET /api/v1/jobs/{jobID}/csv.
func (s *Server) downloadCSV(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "text/csv; charset=utf-8", "csv", s.jobs.OutputCSV)
}

// downloadXLSX handles GET /api/v1/jobs/{jobID}/xlsx.
func (s *Server) downloadXLSX(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", s.jobs.OutputXLSX)
}

// download renders an export into memory first so a failure part way
// through still produces a clean error response.
func (s *Server) download(
	w http.ResponseWriter,
	r *http.Request,
	contentType, ext string,
	render func(ctx context.Context, jobID uuid.UUID, w io.Writer) error,
) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := render(r.Context(), jobID, &buf); err != nil {
		s.logUnexpected(r, err, "export failed")
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID.String()+"."+ext))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// logUnexpected logs errors that will surface as a 5xx.
func (s *Server) logUnexpected(r *http.Request, err error, msg string) {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
		return
	}
	logger := observability.LoggerFromContext(r.Context(), s.logger)
	logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Msg(msg)
}

// writeDomainError maps domain errors to HTTP status codes. Internal error
// detail never reaches the client.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		writeError(w, http.StatusConflict, "operation cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}
