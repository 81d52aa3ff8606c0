package storage

import (
	"context"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

// DefaultListLimit caps List when the filter does not set a limit.
const DefaultListLimit = 100

// JournalFilter selects journal entries. Empty fields match everything.
type JournalFilter struct {
	ChainID    domain.ChainID
	WorkflowID string
	Pipelines  []string
	Limit      int
}

// JournalRepository stores workflow transitions that involved a submitted
// transaction.
type JournalRepository interface {
	// Append stores entry and fills its ID and CreatedAt.
	Append(ctx context.Context, entry *domain.JournalEntry) error

	// List returns matching entries, newest first.
	List(ctx context.Context, filter JournalFilter) ([]*domain.JournalEntry, error)
}
