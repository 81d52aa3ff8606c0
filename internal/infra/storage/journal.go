package storage

import (
	"context"
	"log/slog"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

// Journal is a workflow observer that appends transitions to a repository.
// Only transitions that carry a transaction hash or end the workflow are
// recorded.
type Journal struct {
	repo  JournalRepository
	chain domain.ChainID
	log   *slog.Logger
}

// NewJournal creates a journal observer for chain.
func NewJournal(repo JournalRepository, chain domain.ChainID, log *slog.Logger) *Journal {
	if log == nil {
		log = slog.Default()
	}
	return &Journal{repo: repo, chain: chain, log: log}
}

// OnTransition implements txflow.Observer. Storage failures are logged and
// never affect the workflow.
func (j *Journal) OnTransition(ctx context.Context, p domain.Progress) {
	if p.TxHash == "" && !p.State.IsTerminal() {
		return
	}

	entry := &domain.JournalEntry{
		WorkflowID: p.WorkflowID,
		Pipeline:   p.Pipeline,
		ChainID:    j.chain,
		StepIndex:  p.StepIndex,
		StepName:   p.StepName,
		State:      p.State,
		TxHash:     p.TxHash,
	}
	if p.Err != nil {
		entry.ErrorKind = string(domain.KindOf(p.Err))
		entry.Detail = detail(p.Err)
	}

	if err := j.repo.Append(ctx, entry); err != nil {
		j.log.Error("failed to journal transition",
			"workflow", p.WorkflowID,
			"step", p.StepIndex,
			"state", p.State,
			"tx", p.TxHash,
			"error", err,
		)
	}
}

// detail prefixes the error with the follow-up it calls for, so a journal
// reader can tell a sent-but-unconfirmed write from one safe to resend.
func detail(err error) string {
	if next := domain.ResolutionOf(err); next != domain.ResolveNone {
		return string(next) + ": " + err.Error()
	}
	return err.Error()
}
