package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/dport96/ISERN-Graph/internal/database"
	"github.com/dport96/ISERN-Graph/internal/domain"
)

// PostgreSQL error codes used for constraint violation detection.
const pgUniqueViolation = "23505" // unique_violation

const runColumns = `id, status, threshold, founders, sources, summary, network,
	error_message, started_at, completed_at`

const (
	insertMemberSQL = `
		INSERT INTO run_members (run_id, member_id, display_name, founder, isern_number, degree)
		VALUES ($1, $2, $3, $4, $5, $6)`
	insertEdgeSQL = `
		INSERT INTO run_edges (run_id, member_a, member_b, multiplicity, publications)
		VALUES ($1, $2, $3, $4, $5)`
	insertContextSQL = `
		INSERT INTO run_context_nodes (run_id, node_key, display_name, publications, members)
		VALUES ($1, $2, $3, $4, $5)`
)

// Compile-time interface verification.
var _ RunRepository = (*PgRunRepository)(nil)

// PgRunRepository is a PostgreSQL implementation of RunRepository.
type PgRunRepository struct {
	db     DBTX
	logger zerolog.Logger
}

// NewPgRunRepository creates a new PostgreSQL run repository.
func NewPgRunRepository(db DBTX, logger zerolog.Logger) *PgRunRepository {
	return &PgRunRepository{
		db:     db,
		logger: logger.With().Str("component", "run_repository").Logger(),
	}
}

// Create inserts the run header.
func (r *PgRunRepository) Create(ctx context.Context, run *domain.Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	return insertHeader(ctx, r.db, run)
}

// Save inserts the header and the snapshot in one transaction.
func (r *PgRunRepository) Save(ctx context.Context, run *domain.Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	return r.inTx(ctx, func(db DBTX) error {
		if err := insertHeader(ctx, db, run); err != nil {
			return err
		}
		return writeSnapshot(ctx, db, run, false)
	})
}

// Finish records the final state of a created run and replaces its snapshot.
func (r *PgRunRepository) Finish(ctx context.Context, run *domain.Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	summaryJSON, networkJSON, err := marshalSummaries(run)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(db DBTX) error {
		tag, err := db.Exec(ctx, `
			UPDATE analysis_runs
			SET status = $2, sources = $3, summary = $4, network = $5,
				error_message = $6, completed_at = $7
			WHERE id = $1`,
			run.ID, run.Status, nonNil(run.Sources), summaryJSON, networkJSON,
			nullString(run.ErrorMessage), run.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.NewNotFoundError("run", run.ID.String())
		}
		return writeSnapshot(ctx, db, run, true)
	})
}

// Get retrieves a run with its members and edges.
func (r *PgRunRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("run", id.String())
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if err := r.loadSnapshot(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Latest retrieves the most recent completed run with its snapshot.
func (r *PgRunRepository) Latest(ctx context.Context) (*domain.Run, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM analysis_runs
		WHERE status = $1
		ORDER BY started_at DESC
		LIMIT 1`, domain.RunStatusCompleted)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("run", "latest")
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	if err := r.loadSnapshot(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// List retrieves run headers matching filter, newest first.
func (r *PgRunRepository) List(ctx context.Context, filter RunFilter) ([]*domain.Run, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	var conditions []string
	var args []any
	argIndex := 1

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s)
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM analysis_runs "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM analysis_runs %s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d`, runColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.Run, 0, filter.Limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, total, nil
}

// Delete removes a run. Members, edges and context nodes cascade.
func (r *PgRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM analysis_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("run", id.String())
	}
	return nil
}

// inTx runs fn in a transaction when the underlying DBTX can begin one.
func (r *PgRunRepository) inTx(ctx context.Context, fn func(db DBTX) error) error {
	if beginner, ok := r.db.(database.TxBeginner); ok {
		return database.WithTransaction(ctx, beginner, r.logger, func(tx pgx.Tx) error {
			return fn(tx)
		})
	}
	return fn(r.db)
}

func (r *PgRunRepository) loadSnapshot(ctx context.Context, run *domain.Run) error {
	rows, err := r.db.Query(ctx, `
		SELECT member_id, display_name, founder, isern_number, degree
		FROM run_members
		WHERE run_id = $1
		ORDER BY member_id COLLATE "C"`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run members: %w", err)
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RunMember, error) {
		var m domain.RunMember
		var id string
		err := row.Scan(&id, &m.DisplayName, &m.Founder, &m.IsernNumber, &m.Degree)
		m.MemberID = domain.MemberID(id)
		return m, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan run members: %w", err)
	}

	rows, err = r.db.Query(ctx, `
		SELECT member_a, member_b, multiplicity, publications
		FROM run_edges
		WHERE run_id = $1
		ORDER BY member_a COLLATE "C", member_b COLLATE "C"`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run edges: %w", err)
	}
	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RunEdge, error) {
		var e domain.RunEdge
		var a, b string
		var pubs []string
		err := row.Scan(&a, &b, &e.Multiplicity, &pubs)
		e.A, e.B = domain.MemberID(a), domain.MemberID(b)
		e.Publications = make([]domain.PublicationID, len(pubs))
		for i, p := range pubs {
			e.Publications[i] = domain.PublicationID(p)
		}
		return e, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan run edges: %w", err)
	}

	rows, err = r.db.Query(ctx, `
		SELECT node_key, display_name, publications, members
		FROM run_context_nodes
		WHERE run_id = $1
		ORDER BY node_key COLLATE "C"`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run context nodes: %w", err)
	}
	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RunContextNode, error) {
		var n domain.RunContextNode
		var ids []string
		err := row.Scan(&n.Key, &n.DisplayName, &n.Publications, &ids)
		n.Members = make([]domain.MemberID, len(ids))
		for i, id := range ids {
			n.Members[i] = domain.MemberID(id)
		}
		return n, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan run context nodes: %w", err)
	}

	run.Members = members
	run.Edges = edges
	run.ContextCoauthors = nodes
	return nil
}

func insertHeader(ctx context.Context, db DBTX, run *domain.Run) error {
	summaryJSON, networkJSON, err := marshalSummaries(run)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `INSERT INTO analysis_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.Status, run.Threshold, memberStrings(run.Founders), nonNil(run.Sources),
		summaryJSON, networkJSON, nullString(run.ErrorMessage), run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("run", run.ID.String())
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// writeSnapshot queues every member, edge and context node row in one batch. With replace set, the
// previous snapshot of the run is removed first.
func writeSnapshot(ctx context.Context, db DBTX, run *domain.Run, replace bool) error {
	if replace {
		if _, err := db.Exec(ctx, `DELETE FROM run_members WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("failed to clear run members: %w", err)
		}
		if _, err := db.Exec(ctx, `DELETE FROM run_edges WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("failed to clear run edges: %w", err)
		}
		if _, err := db.Exec(ctx, `DELETE FROM run_context_nodes WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("failed to clear run context nodes: %w", err)
		}
	}
	if len(run.Members)+len(run.Edges)+len(run.ContextCoauthors) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range run.Members {
		batch.Queue(insertMemberSQL, run.ID, string(m.MemberID), m.DisplayName, m.Founder, m.IsernNumber, m.Degree)
	}
	for _, e := range run.Edges {
		batch.Queue(insertEdgeSQL, run.ID, string(e.A), string(e.B), e.Multiplicity, publicationStrings(e.Publications))
	}
	for _, n := range run.ContextCoauthors {
		batch.Queue(insertContextSQL, run.ID, n.Key, n.DisplayName, n.Publications, memberStrings(n.Members))
	}

	br := db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to write snapshot row %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func validateRun(run *domain.Run) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if run.ID == uuid.Nil {
		return domain.NewValidationError("id", "run ID is required")
	}
	switch run.Status {
	case domain.RunStatusRunning, domain.RunStatusCompleted, domain.RunStatusFailed:
	default:
		return domain.NewValidationError("status", "unknown run status "+string(run.Status))
	}
	if math.IsNaN(run.Threshold) || run.Threshold < 0 || run.Threshold > 1 {
		return domain.NewValidationError("threshold", "must be within [0,1]")
	}
	if run.StartedAt.IsZero() {
		return domain.NewValidationError("started_at", "start time is required")
	}
	for _, e := range run.Edges {
		if e.A >= e.B {
			return domain.NewValidationError("edges", fmt.Sprintf("edge %s-%s is not ordered", e.A, e.B))
		}
	}
	for _, n := range run.ContextCoauthors {
		if n.Key == "" || n.Publications <= 0 {
			return domain.NewValidationError("context_coauthors", fmt.Sprintf("context node %q needs a key and a publication", n.Key))
		}
	}
	return nil
}

func marshalSummaries(run *domain.Run) ([]byte, []byte, error) {
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	networkJSON, err := json.Marshal(run.Network)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal network summary: %w", err)
	}
	return summaryJSON, networkJSON, nil
}

// runScanDest holds the destination pointers for scanning an analysis_runs row.
type runScanDest struct {
	run          domain.Run
	founders     []string
	summaryJSON  []byte
	networkJSON  []byte
	errorMessage *string
}

// destinations returns the slice of pointers for Scan operations, in runColumns order.
func (d *runScanDest) destinations() []any {
	return []any{
		&d.run.ID, &d.run.Status, &d.run.Threshold, &d.founders, &d.run.Sources,
		&d.summaryJSON, &d.networkJSON, &d.errorMessage, &d.run.StartedAt, &d.run.CompletedAt,
	}
}

// finalize converts scanned columns into domain types.
func (d *runScanDest) finalize() (*domain.Run, error) {
	if d.errorMessage != nil {
		d.run.ErrorMessage = *d.errorMessage
	}
	d.run.Founders = make([]domain.MemberID, len(d.founders))
	for i, f := range d.founders {
		d.run.Founders[i] = domain.MemberID(f)
	}
	if len(d.summaryJSON) > 0 {
		if err := json.Unmarshal(d.summaryJSON, &d.run.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
	}
	if len(d.networkJSON) > 0 {
		if err := json.Unmarshal(d.networkJSON, &d.run.Network); err != nil {
			return nil, fmt.Errorf("failed to unmarshal network summary: %w", err)
		}
	}
	return &d.run, nil
}

// scanRun scans one header row from a pgx.Row or the current row of pgx.Rows.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var dest runScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func memberStrings(ids []domain.MemberID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func publicationStrings(ids []domain.PublicationID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
