// Package repository persists analysis runs in PostgreSQL.
//
// A run is stored as one analysis_runs header row plus its member snapshot (run_members)
// and edge snapshot (run_edges). Header writes and snapshot writes share one transaction,
// so a reader never sees a completed run without its graph.
//
// # Error Handling
//
// Methods return domain errors that match with errors.Is:
//
//   - domain.ErrNotFound: the run does not exist
//   - domain.ErrAlreadyExists: a run with the same ID was already saved
//   - domain.ErrInvalidInput: the run or filter failed validation
//
// # Transactions
//
// A repository built over a pool opens its own transaction for multi-statement writes.
// One built over a pgx.Tx nests a savepoint inside the caller's transaction:
//
//	err := database.WithTransaction(ctx, db, logger, func(tx pgx.Tx) error {
//	    return repository.NewPgRunRepository(tx, logger).Save(ctx, run)
//	})
package repository

import (
	"github.com/dport96/ISERN-Graph/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX
