package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/infra/chain/evm"
	"github.com/vietddude/ticketchain/internal/infra/rpc"
	"github.com/vietddude/ticketchain/internal/infra/storage"
	"github.com/vietddude/ticketchain/internal/infra/storage/postgres"
	"github.com/vietddude/ticketchain/internal/snapshot"
)

// These tests run against a local anvil node with the ticketing contracts
// deployed, and optionally a PostgreSQL database:
//
//	E2E_LIVE=true E2E_RPC_URL=http://127.0.0.1:8545 \
//	E2E_EVENT_FACTORY=0x... E2E_DB_URL=postgres://... go test ./tests/e2e/

func liveGateway(t *testing.T) *evm.Gateway {
	t.Helper()
	if os.Getenv("E2E_LIVE") == "" {
		t.Skip("Skipping live E2E test. Set E2E_LIVE=true to run.")
	}
	url := os.Getenv("E2E_RPC_URL")
	if url == "" {
		url = "http://127.0.0.1:8545"
	}

	client := rpc.NewClient([]rpc.Provider{rpc.NewHTTPProvider("anvil", url, 10*time.Second)})
	t.Cleanup(func() { _ = client.Close() })

	gw, err := evm.NewGateway(client, nil, evm.Config{ChainID: domain.ChainIDAnvil, PollInterval: 200 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}
	return gw
}

func TestGateway_Live(t *testing.T) {
	gw := liveGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := gw.VerifyChain(ctx); err != nil {
		t.Fatalf("Chain check failed: %v", err)
	}

	caller, err := gw.CurrentCaller(ctx)
	if err != nil {
		t.Fatalf("CurrentCaller failed: %v", err)
	}
	if caller == nil {
		t.Fatal("Expected anvil to expose an unlocked account")
	}
	t.Logf("Caller: %s", *caller)

	factory := os.Getenv("E2E_EVENT_FACTORY")
	if factory == "" {
		t.Log("E2E_EVENT_FACTORY not set, skipping event reads")
		return
	}
	b := snapshot.NewBuilder(gw, snapshot.WithFactory(domain.Address(factory)))
	events, err := b.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	t.Logf("Factory lists %d event(s)", len(events))

	for _, e := range events {
		snap, err := b.Build(ctx, string(e))
		if err != nil {
			t.Errorf("Build %s failed: %v", e, err)
			continue
		}
		t.Logf("%s: %q, %d tier(s), sold %s", e, snap.Event.Name, len(snap.Tiers), snap.Stats.Sold)
	}
}

func TestJournal_Live(t *testing.T) {
	if os.Getenv("E2E_LIVE") == "" {
		t.Skip("Skipping live E2E test. Set E2E_LIVE=true to run.")
	}
	dbURL := os.Getenv("E2E_DB_URL")
	if dbURL == "" {
		t.Skip("E2E_DB_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.NewDB(ctx, postgres.Config{URL: dbURL})
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	repo := postgres.NewJournalRepo(db)
	wf := "e2e-" + time.Now().Format("20060102150405.000")
	j := storage.NewJournal(repo, domain.ChainIDAnvil, nil)
	j.OnTransition(ctx, domain.Progress{
		WorkflowID: wf,
		Pipeline:   "purchase_tickets",
		StepName:   "approve",
		State:      domain.WorkflowAwaitingConfirmation,
		TxHash:     "0xab",
	})

	entries, err := repo.List(ctx, storage.JournalFilter{WorkflowID: wf})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].State != domain.WorkflowAwaitingConfirmation {
		t.Errorf("Expected the recorded transition, got %+v", entries)
	}
}
