package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/pipeline"
)

// sseMaxDuration is the maximum time an SSE stream may remain open.
const sseMaxDuration = 4 * time.Hour

// ssePollInterval is how often the stream samples run progress. Tests shorten it.
var ssePollInterval = 2 * time.Second

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType string             `json:"event_type"`
	RunID     string             `json:"run_id,omitempty"`
	Status    string             `json:"status,omitempty"`
	Progress  *pipeline.Progress `json:"progress,omitempty"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
}

// streamProgress handles GET /runs/current/progress (SSE). It emits a progress_update
// whenever the member count advances and a terminal event once the run is recorded.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	current, running := s.runner.Progress()
	if !running {
		sendSSEEvent(w, flusher, sseEvent{
			EventType: "idle",
			Message:   "no analysis run in progress",
			Timestamp: time.Now(),
		})
		return
	}

	sendSSEEvent(w, flusher, sseEvent{
		EventType: "stream_started",
		RunID:     current.RunID.String(),
		Status:    "running",
		Progress:  &current,
		Message:   "progress stream started",
		Timestamp: time.Now(),
	})

	ctx := r.Context()
	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	last := current
	for {
		select {
		case <-ctx.Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: "timeout",
				RunID:     last.RunID.String(),
				Message:   "stream max duration exceeded",
				Timestamp: time.Now(),
			})
			return

		case <-ticker.C:
			p, ok := s.runner.Progress()
			if !ok || p.RunID != last.RunID {
				s.sendTerminal(w, flusher, r, last.RunID)
				return
			}
			if p.Done == last.Done {
				continue
			}
			last = p
			sendSSEEvent(w, flusher, sseEvent{
				EventType: "progress_update",
				RunID:     p.RunID.String(),
				Status:    "running",
				Progress:  &p,
				Message:   fmt.Sprintf("%d of %d members processed", p.Done, p.Total),
				Timestamp: time.Now(),
			})
		}
	}
}

// sendTerminal reports the recorded outcome of a run that has left the runner.
func (s *Server) sendTerminal(w http.ResponseWriter, flusher http.Flusher, r *http.Request, runID uuid.UUID) {
	evt := sseEvent{EventType: "completed", RunID: runID.String(), Timestamp: time.Now()}
	run, err := s.runRepo.Get(r.Context(), runID)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID.String()).Msg("failed to load finished run")
		evt.Message = "run finished"
		sendSSEEvent(w, flusher, evt)
		return
	}
	evt.Status = string(run.Status)
	evt.Message = "run finished with status: " + string(run.Status)
	if !run.Status.IsTerminal() {
		evt.EventType = "error"
		evt.Message = "run stopped without recording a final status"
	} else if run.Status != domain.RunStatusCompleted {
		evt.EventType = string(run.Status)
	}
	sendSSEEvent(w, flusher, evt)
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
