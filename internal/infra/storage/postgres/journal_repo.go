package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/infra/storage"
)

const insertJournal = `INSERT INTO tx_journal
	(workflow_id, pipeline, chain_id, step_index, step_name, state, tx_hash, error_kind, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at`

const selectJournal = `SELECT id, workflow_id, pipeline, chain_id, step_index, step_name,
	state, tx_hash, error_kind, detail, created_at
FROM tx_journal`

// JournalRepo implements storage.JournalRepository using PostgreSQL.
type JournalRepo struct {
	db *DB
}

// NewJournalRepo creates a new PostgreSQL journal repository.
func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Append inserts entry and reads back its id and timestamp.
func (r *JournalRepo) Append(ctx context.Context, entry *domain.JournalEntry) error {
	err := r.db.QueryRowxContext(ctx, insertJournal,
		entry.WorkflowID,
		entry.Pipeline,
		string(entry.ChainID),
		entry.StepIndex,
		entry.StepName,
		string(entry.State),
		entry.TxHash,
		entry.ErrorKind,
		entry.Detail,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// List returns matching entries, newest first.
func (r *JournalRepo) List(ctx context.Context, f storage.JournalFilter) ([]*domain.JournalEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.ChainID != "" {
		args = append(args, string(f.ChainID))
		where = append(where, fmt.Sprintf("chain_id = $%d", len(args)))
	}
	if f.WorkflowID != "" {
		args = append(args, f.WorkflowID)
		where = append(where, fmt.Sprintf("workflow_id = $%d", len(args)))
	}
	if len(f.Pipelines) > 0 {
		args = append(args, pq.Array(f.Pipelines))
		where = append(where, fmt.Sprintf("pipeline = ANY($%d)", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	args = append(args, limit)

	query := selectJournal
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	var entries []*domain.JournalEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	return entries, nil
}
