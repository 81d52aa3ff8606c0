package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/infra/storage"
)

// JournalRepo keeps journal entries in process memory.
type JournalRepo struct {
	mu      sync.RWMutex
	entries []*domain.JournalEntry
	nextID  uint64
	now     func() time.Time
}

// NewJournalRepo creates an empty in-memory journal.
func NewJournalRepo() *JournalRepo {
	return &JournalRepo{nextID: 1, now: time.Now}
}

func (r *JournalRepo) Append(ctx context.Context, entry *domain.JournalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.ID = r.nextID
	r.nextID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	stored := *entry
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *JournalRepo) List(ctx context.Context, f storage.JournalFilter) ([]*domain.JournalEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	var out []*domain.JournalEntry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.entries[i]
		if f.ChainID != "" && e.ChainID != f.ChainID {
			continue
		}
		if f.WorkflowID != "" && e.WorkflowID != f.WorkflowID {
			continue
		}
		if len(f.Pipelines) > 0 && !slices.Contains(f.Pipelines, e.Pipeline) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
