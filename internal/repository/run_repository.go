package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// RunRepository handles analysis run persistence.
type RunRepository interface {
	// Create inserts the run header. The snapshot (members, edges, context nodes) is ignored.
	// Returns domain.ErrAlreadyExists if a run with the same ID exists.
	Create(ctx context.Context, run *domain.Run) error

	// Save inserts the header together with the member, edge and context node snapshot.
	// Returns domain.ErrAlreadyExists if a run with the same ID exists.
	Save(ctx context.Context, run *domain.Run) error

	// Finish updates the header of a created run to its final state and replaces its
	// snapshot. Returns domain.ErrNotFound if the run was never created.
	Finish(ctx context.Context, run *domain.Run) error

	// Get retrieves a run with its members, edges and context nodes.
	// Returns domain.ErrNotFound if no run has this ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// Latest retrieves the most recently started completed run with its snapshot.
	// Returns domain.ErrNotFound if no run has completed yet.
	Latest(ctx context.Context) (*domain.Run, error)

	// List retrieves run headers, newest first, and the total count matching filter.
	List(ctx context.Context, filter RunFilter) ([]*domain.Run, int64, error)

	// Delete removes a run and its snapshot.
	// Returns domain.ErrNotFound if no run has this ID.
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	// Status filters by one or more run statuses (optional).
	Status []domain.RunStatus

	// Limit specifies maximum number of results (default: 50, max: 500).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks the filter and applies defaults.
// Returns domain.ErrInvalidInput for an unknown status.
func (f *RunFilter) Validate() error {
	for _, s := range f.Status {
		switch s {
		case domain.RunStatusRunning, domain.RunStatusCompleted, domain.RunStatusFailed:
		default:
			return domain.NewValidationError("status", "unknown run status "+string(s))
		}
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}
