package cli

import (
	"context"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/pipeline"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin <event> <tokenId>",
	Short: "Check a ticket in at the venue by burning it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := new(big.Int).SetString(args[1], 10)
		if !ok || id.Sign() < 0 {
			return domain.NewError(domain.KindInvalidInput, "checkin", fmt.Errorf("token id %q", args[1]))
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			pc, role, err := a.pipelineContext(ctx)
			if err != nil {
				return err
			}
			if !role.CanCheckIn() {
				return domain.NewError(domain.KindInvalidInput, "checkin",
					fmt.Errorf("role %s may not check tickets in", role))
			}
			c, err := a.pipeline.PrepareCheckIn(ctx, pc, pipeline.CheckInRequest{Event: args[0], TokenID: id})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			done := follow(out, c.Workflow())
			res, runErr := c.Run(ctx)
			<-done
			printSteps(out, res)
			if runErr == nil {
				fmt.Fprintf(out, "ticket %s checked in\n", id)
			}
			return runErr
		})
	},
}
