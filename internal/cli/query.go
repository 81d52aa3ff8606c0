package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <event>",
	Short: "Show an event, its tiers and sales statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			snap, err := a.views.Build(ctx, args[0])
			if err != nil {
				return err
			}
			printSnapshot(cmd, snap)
			if !snapshotBurns {
				return nil
			}

			burns, err := a.views.BurnHistory(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\ncheck-ins: %d\n", len(burns))
			tw := newTable(out)
			row(tw, "TOKEN", "TIER", "ATTENDEE", "BY", "AT")
			for _, b := range burns {
				row(tw, b.TokenID, b.TierID, b.Attendee.Checksum(), b.BurnedBy.Checksum(), unixTime(b.Timestamp))
			}
			return tw.Flush()
		})
	},
}

var snapshotBurns bool

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotBurns, "burns", false, "also list check-ins")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List events deployed through the factory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			events, err := a.views.ListEvents(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			row(tw, "ADDRESS", "NAME", "DATE", "SOLD")
			for _, e := range events {
				snap, err := a.views.Build(ctx, string(e))
				if err != nil {
					a.log.Warn("skipping unreadable event", "event", e, "error", err)
					row(tw, e.Checksum(), "?", "?", "?")
					continue
				}
				row(tw, e.Checksum(), snap.Event.Name, unixTime(snap.Event.Date), snap.Stats.Sold)
			}
			return tw.Flush()
		})
	},
}

var ticketsCmd = &cobra.Command{
	Use:   "tickets <event> [owner]",
	Short: "List tickets of an event held by owner (default: current wallet)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			owner, err := ownerArg(ctx, a, args[1:])
			if err != nil {
				return err
			}
			tickets, err := a.views.Tickets(ctx, args[0], owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owner: %s\n", owner.Checksum())
			tw := newTable(cmd.OutOrStdout())
			row(tw, "TOKEN", "TIER", "MINTED", "ORIGINAL OWNER", "USED")
			for _, t := range tickets {
				row(tw, t.TokenID, t.TierID, unixTime(t.MintTimestamp), t.OriginalOwner.Checksum(), t.IsUsed)
			}
			return tw.Flush()
		})
	},
}

var roleCmd = &cobra.Command{
	Use:   "role [address]",
	Short: "Show the role of an address (default: current wallet)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var (
				role   domain.Role
				caller *domain.Address
				err    error
			)
			if len(args) == 1 {
				addr := domain.Address(args[0])
				caller = &addr
				role, err = a.resolver.Resolve(ctx, caller)
			} else {
				role, caller, err = a.resolver.ResolveCurrent(ctx, a.gateway)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if caller == nil {
				fmt.Fprintln(out, role)
				return nil
			}
			fmt.Fprintf(out, "%s\t%s\n", caller.Checksum(), role)
			if a.cfg.Contracts.Token != "" {
				if bal, err := a.views.Balance(ctx, *caller); err == nil {
					fmt.Fprintf(out, "balance\t%s\n", amount(bal))
				}
			}
			return nil
		})
	},
}

func ownerArg(ctx context.Context, a *app, args []string) (domain.Address, error) {
	if len(args) > 0 {
		return domain.ParseAddress(args[0])
	}
	caller, err := a.gateway.CurrentCaller(ctx)
	if err != nil {
		return "", err
	}
	if caller == nil {
		return "", domain.NewError(domain.KindInvalidInput, "tickets", fmt.Errorf("no owner given and no wallet connected"))
	}
	return *caller, nil
}

func printSnapshot(cmd *cobra.Command, snap *domain.DomainSnapshot) {
	out := cmd.OutOrStdout()
	e := snap.Event
	fmt.Fprintf(out, "%s\n%s\n", e.Name, e.Description)
	fmt.Fprintf(out, "venue: %s\ndate: %s\norganizer: %s\nticket nft: %s\n\n",
		e.Venue, unixTime(e.Date), e.Organizer.Checksum(), e.TicketNFT.Checksum())

	tw := newTable(out)
	row(tw, "ID", "TIER", "PRICE", "SOLD", "AVAILABLE", "REMAINING", "SOLD OUT", "MAX", "ACTIVE")
	for i, t := range snap.Tiers {
		st := snap.Stats.PerTier[i]
		row(tw, t.ID, t.Name, amount(t.Price), t.Sold, t.Available, st.Remaining,
			percent(st.SelloutRatio), t.MaxPerPurchase, t.Active)
	}
	_ = tw.Flush()

	st := snap.Stats
	fmt.Fprintf(out, "\nsold %s of %s (%s), remaining %s, revenue %s\nfetched %s\n",
		st.Sold, st.Available, percent(st.SelloutRatio), st.Remaining, amount(st.Revenue),
		snap.FetchedAt.Format("2006-01-02 15:04:05"))
}
