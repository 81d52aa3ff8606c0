package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/ticketchain/internal/access"
	"github.com/vietddude/ticketchain/internal/core/config"
	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/health"
	"github.com/vietddude/ticketchain/internal/infra/chain/evm"
	redisclient "github.com/vietddude/ticketchain/internal/infra/redis"
	"github.com/vietddude/ticketchain/internal/infra/rpc"
	"github.com/vietddude/ticketchain/internal/infra/storage"
	"github.com/vietddude/ticketchain/internal/infra/storage/memory"
	"github.com/vietddude/ticketchain/internal/infra/storage/postgres"
	"github.com/vietddude/ticketchain/internal/pipeline"
	"github.com/vietddude/ticketchain/internal/snapshot"
	"github.com/vietddude/ticketchain/internal/txflow"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg     *config.AppConfig
	log     *slog.Logger
	client  *rpc.Client
	gateway *evm.Gateway

	// views may be served from the cache; fresh always reads the chain
	// and backs the write preflights.
	views    *snapshot.Builder
	fresh    *snapshot.Builder
	resolver *access.Resolver
	pipeline *pipeline.Service

	journal    storage.JournalRepository
	persistent bool

	server  *health.Server
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.AppConfig, from string, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	chain := cfg.Chain
	providers := make([]rpc.Provider, 0, len(chain.Providers))
	for _, p := range chain.Providers {
		providers = append(providers, rpc.NewHTTPProvider(p.Name, p.URL, chain.RequestTimeout))
	}
	opts := []rpc.ClientOption{rpc.WithLogger(log)}
	if chain.WSURL != "" {
		opts = append(opts, rpc.WithWebSocket(rpc.NewWSProvider("ws", chain.WSURL)))
	}
	a.client = rpc.NewClient(providers, opts...)
	a.closers = append(a.closers, a.client.Close)

	var sender domain.Address
	if from != "" {
		addr, err := domain.ParseAddress(from)
		if err != nil {
			return nil, fmt.Errorf("--from: %w", err)
		}
		sender = addr
	}

	gw, err := evm.NewGateway(a.client, nil, evm.Config{
		ChainID:      chain.ChainID,
		From:         sender,
		PollInterval: chain.PollInterval,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := gw.VerifyChain(ctx); err != nil {
		return nil, err
	}
	a.gateway = gw

	builderOpts := []snapshot.Option{
		snapshot.WithLogger(log),
		snapshot.WithFactory(cfg.Contracts.EventFactory),
		snapshot.WithToken(cfg.Contracts.Token),
	}
	a.fresh = snapshot.NewBuilder(gw, builderOpts...)

	var views snapshot.Reader = gw
	monitor := health.NewMonitor(string(chain.ChainID), a.client)
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		views = redisclient.NewViewCache(gw, rc, chain.ChainID, cfg.Redis.TTL, log)
		monitor.AddCheck("redis", func(ctx context.Context) error {
			_, _, err := rc.Get(ctx, "ticketchain:ping")
			return err
		})
	}
	a.views = snapshot.NewBuilder(views, builderOpts...)
	a.resolver = access.NewResolver(views, access.Config{
		AccessControl: cfg.Contracts.AccessControl,
		Admin:         cfg.Roles.Admin,
		Staff:         cfg.Roles.Staff,
	}, log)

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
		a.journal = postgres.NewJournalRepo(db)
		a.persistent = true
		monitor.AddCheck("database", db.Health)
	} else {
		a.journal = memory.NewJournalRepo()
	}

	exec := txflow.NewExecutor(gw, txflow.ExecutorConfig{
		MinConfirmations: chain.Confirmations,
		ReceiptTimeout:   chain.ReceiptTimeout,
	}).WithLogger(log)
	a.pipeline = pipeline.NewService(pipeline.Deps{
		Executor:   exec,
		Decoder:    gw,
		Subscriber: gw,
		Snapshots:  a.fresh,
	}, pipeline.Contracts{
		EventFactory:  cfg.Contracts.EventFactory,
		Token:         cfg.Contracts.Token,
		AccessControl: cfg.Contracts.AccessControl,
	},
		pipeline.WithLogger(log),
		pipeline.WithObserver(storage.NewJournal(a.journal, chain.ChainID, log)),
	)

	if cfg.Server.Port > 0 {
		a.server = health.NewServer(monitor, cfg.Server.Port)
		go func() {
			if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("health server stopped", "error", err)
			}
		}()
		log.Debug("health server listening", "port", cfg.Server.Port)
	}

	ok = true
	return a, nil
}

// pipelineContext resolves the acting wallet for a write.
func (a *app) pipelineContext(ctx context.Context) (pipeline.Context, domain.Role, error) {
	role, caller, err := a.resolver.ResolveCurrent(ctx, a.gateway)
	if err != nil {
		return pipeline.Context{}, "", err
	}
	pc := pipeline.Context{ChainID: a.cfg.Chain.ChainID}
	if caller != nil {
		pc.Caller = *caller
	}
	return pc, role, nil
}

func (a *app) Close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.server.Stop(ctx))
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
