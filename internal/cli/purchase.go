package cli

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/pipeline"
)

var purchaseCmd = &cobra.Command{
	Use:   "purchase <event> <tier> <quantity>",
	Short: "Approve the payment token and buy tickets",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := parsePurchase(args)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			pc, _, err := a.pipelineContext(ctx)
			if err != nil {
				return err
			}
			p, err := a.pipeline.PreparePurchase(ctx, pc, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s x%d, total %s\n", p.Tier.Name, req.Quantity, amount(p.Cost))
			done := follow(out, p.Workflow())
			res, runErr := p.Run(ctx)
			<-done

			if res == nil {
				return runErr
			}
			printSteps(out, res.Result)
			if len(res.TokenIDs) > 0 {
				fmt.Fprintf(out, "tickets: %s\n", joinBig(res.TokenIDs))
			}
			if runErr != nil && res.Approved {
				fmt.Fprintln(out, "the token allowance was approved; a retry only needs the purchase")
			}
			return runErr
		})
	},
}

func parsePurchase(args []string) (pipeline.PurchaseRequest, error) {
	const op = "purchase"
	tier, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return pipeline.PurchaseRequest{}, domain.NewError(domain.KindInvalidInput, op,
			fmt.Errorf("tier %q: %w", args[1], err))
	}
	qty, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return pipeline.PurchaseRequest{}, domain.NewError(domain.KindQuantityOutOfRange, op,
			fmt.Errorf("quantity %q: %w", args[2], err))
	}
	return pipeline.PurchaseRequest{Event: args[0], TierID: tier, Quantity: qty}, nil
}

func joinBig(ids []*big.Int) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += id.String()
	}
	return s
}
