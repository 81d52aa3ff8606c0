package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/ticketchain/internal/core/config"
	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/txflow"
)

var (
	cfgPath string
	isDebug bool
	fromArg string
)

var rootCmd = &cobra.Command{
	Use:           "ticketchain",
	Short:         "Ticketchain event ticketing client",
	Long:          `Ticketchain deploys events, sells and checks in NFT tickets, and reads event state on an EVM chain.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error(describe(err),
			"kind", domain.KindOf(err),
			"next", domain.ResolutionOf(err),
			"tx", domain.SubmittedTx(err),
			"error", err,
		)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&fromArg, "from", "", "sender address (default: first node account)")

	rootCmd.AddCommand(
		deployCmd,
		purchaseCmd,
		checkinCmd,
		snapshotCmd,
		eventsCmd,
		ticketsCmd,
		roleCmd,
		journalCmd,
	)
}

func loadConfig() (*config.AppConfig, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		return nil, nil, err
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	if cfg.Logging.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
	} else {
		stylelog.InitDefault(&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	}
	return cfg, slog.Default().With("chain", cfg.Chain.Name), nil
}

// withApp loads configuration, wires the components and runs fn with a
// context cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, fromArg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown", "error", err)
		}
	}()
	return fn(ctx, a)
}

// describe turns an error into the message shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, txflow.ErrCancelled), errors.Is(err, context.Canceled):
		return "Interrupted; steps not yet sent were skipped"
	case domain.KindOf(err) == "":
		return "Command failed"
	}
	return domain.Message(err)
}

// Exit codes: 1 for failures a retry or a fresh attempt may clear, 2 when
// the input has to change first, 3 when a sent transaction needs checking.
func exitCode(err error) int {
	switch domain.ResolutionOf(err) {
	case domain.ResolveFixInput:
		return 2
	case domain.ResolveCheckTx:
		return 3
	}
	return 1
}
