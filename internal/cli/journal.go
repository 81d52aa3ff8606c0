package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vietddude/ticketchain/internal/infra/storage"
	"github.com/vietddude/ticketchain/internal/txflow"
)

var (
	journalLimit     int
	journalPipelines []string
)

var journalCmd = &cobra.Command{
	Use:   "journal [workflow-id]",
	Short: "List recorded transaction submissions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if !a.persistent {
				a.log.Warn("database.url is not configured; the journal only covers this process")
			}
			f := storage.JournalFilter{
				ChainID:   a.cfg.Chain.ChainID,
				Pipelines: journalPipelines,
				Limit:     journalLimit,
			}
			if len(args) == 1 {
				f.WorkflowID = args[0]
			}
			entries, err := a.journal.List(ctx, f)
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			row(tw, "TIME", "WORKFLOW", "PIPELINE", "STEP", "STATE", "TX", "ERROR")
			for _, e := range entries {
				tx := e.TxHash
				if tx == "" {
					tx = "-"
				}
				errKind := e.ErrorKind
				if errKind == "" {
					errKind = "-"
				}
				row(tw, e.CreatedAt.Format("2006-01-02 15:04:05"), e.WorkflowID, e.Pipeline,
					fmt.Sprintf("%d %s", e.StepIndex, e.StepName), txflow.StateDescription(e.State), tx, errKind)
			}
			return tw.Flush()
		})
	},
}

func init() {
	journalCmd.Flags().IntVar(&journalLimit, "limit", storage.DefaultListLimit, "maximum entries to show")
	journalCmd.Flags().StringSliceVar(&journalPipelines, "pipeline", nil, "only these pipelines")
}
