package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	// sseQueryInterval is how often the stream polls for job state.
	sseQueryInterval = 2 * time.Second
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 4 * time.Hour
)

// SSE event types.
const (
	eventStreamStarted = "stream_started"
	eventProgress      = "progress_update"
	eventCompleted     = "completed"
	eventTimeout       = "timeout"
)

// streamProgress handles GET /api/v1/jobs/{jobID}/progress/stream (SSE).
// It emits an event whenever the job's progress changes and closes once the
// job reaches a terminal status.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}

	ctx := r.Context()
	current, err := s.jobs.Progress(ctx, jobID)
	if err != nil {
		s.logUnexpected(r, err, "progress lookup failed")
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if current.Status.IsTerminal() {
		sendSSEEvent(w, flusher, sseEvent{
			EventType: eventCompleted,
			JobID:     jobID.String(),
			Progress:  current,
			Message:   "job is in terminal state",
			Timestamp: time.Now(),
		})
		return
	}

	sendSSEEvent(w, flusher, sseEvent{
		EventType: eventStreamStarted,
		JobID:     jobID.String(),
		Progress:  current,
		Message:   "progress stream started",
		Timestamp: time.Now(),
	})

	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	last := *current
	for {
		select {
		case <-ctx.Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: eventTimeout,
				JobID:     jobID.String(),
				Message:   "stream max duration exceeded",
				Timestamp: time.Now(),
			})
			return

		case <-ticker.C:
			next, pollErr := s.jobs.Progress(ctx, jobID)
			if pollErr != nil {
				s.logger.Error().Err(pollErr).Str("job_id", jobID.String()).Msg("failed to poll job progress")
				continue
			}

			if next.Status.IsTerminal() {
				sendSSEEvent(w, flusher, sseEvent{
					EventType: eventCompleted,
					JobID:     jobID.String(),
					Progress:  next,
					Message:   "job finished with status: " + string(next.Status),
					Timestamp: time.Now(),
				})
				return
			}

			if next.Equal(last) {
				continue
			}
			last = *next
			sendSSEEvent(w, flusher, sseEvent{
				EventType: eventProgress,
				JobID:     jobID.String(),
				Progress:  next,
				Message:   "status: " + string(next.Status),
				Timestamp: time.Now(),
			})
		}
	}
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
