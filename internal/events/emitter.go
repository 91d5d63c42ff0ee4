package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

const (
	// AggregateTypeRun is the aggregate type of every run event.
	AggregateTypeRun = "isern_run"

	// Event types.
	TypeRunStarted   = "run.started"
	TypeRunCompleted = "run.completed"
	TypeRunFailed    = "run.failed"

	defaultSource = "isern-graph"
)

// Event is the envelope written to the topic.
type Event struct {
	EventID       string          `json:"event_id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      Metadata        `json:"metadata"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Metadata carries the emitter identity and tracing context.
type Metadata struct {
	Source        string `json:"source"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// RunPayload summarizes a run for consumers that do not read the database.
type RunPayload struct {
	RunID        string                  `json:"run_id"`
	Status       domain.RunStatus        `json:"status"`
	Threshold    float64                 `json:"threshold"`
	Founders     []domain.MemberID       `json:"founders"`
	Sources      []string                `json:"sources"`
	Discovery    domain.DiscoverySummary `json:"discovery"`
	Network      domain.NetworkSummary   `json:"network"`
	Members      int                     `json:"members"`
	Reachable    int                     `json:"reachable"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	StartedAt    time.Time               `json:"started_at"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
}

// EmitterConfig configures an Emitter.
type EmitterConfig struct {
	// Source identifies the emitting process.
	Source string
}

// Emitter builds run events.
type Emitter struct {
	config EmitterConfig
	now    func() time.Time
}

// NewEmitter returns an Emitter, defaulting the source name.
func NewEmitter(config EmitterConfig) *Emitter {
	if config.Source == "" {
		config.Source = defaultSource
	}
	return &Emitter{config: config, now: time.Now}
}

// RunEvent builds the event of the given type for run. correlationID may be empty.
func (e *Emitter) RunEvent(eventType string, run *domain.Run, correlationID string) (Event, error) {
	if run == nil || run.ID == uuid.Nil {
		return Event{}, fmt.Errorf("run id is required")
	}
	switch eventType {
	case TypeRunStarted, TypeRunCompleted, TypeRunFailed:
	default:
		return Event{}, fmt.Errorf("unknown event type %q", eventType)
	}

	payload, err := json.Marshal(newRunPayload(run))
	if err != nil {
		return Event{}, fmt.Errorf("marshal payload: %w", err)
	}

	return Event{
		EventID:       uuid.NewString(),
		AggregateID:   run.ID.String(),
		AggregateType: AggregateTypeRun,
		EventType:     eventType,
		Payload:       payload,
		Metadata:      Metadata{Source: e.config.Source, CorrelationID: correlationID},
		OccurredAt:    e.now().UTC(),
	}, nil
}

// TerminalType returns the event type matching a finished run's status.
func TerminalType(status domain.RunStatus) string {
	if status == domain.RunStatusCompleted {
		return TypeRunCompleted
	}
	return TypeRunFailed
}

func newRunPayload(run *domain.Run) RunPayload {
	p := RunPayload{
		RunID:        run.ID.String(),
		Status:       run.Status,
		Threshold:    run.Threshold,
		Founders:     run.Founders,
		Sources:      run.Sources,
		Discovery:    run.Summary,
		Network:      run.Network,
		Members:      len(run.Members),
		ErrorMessage: run.ErrorMessage,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
	}
	for _, m := range run.Members {
		if m.IsernNumber != nil {
			p.Reachable++
		}
	}
	return p
}
