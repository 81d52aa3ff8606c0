package cli

import (
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/txflow"
)

// amountDigits is the number of fractional token digits shown.
const amountDigits = 4

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func row(tw *tabwriter.Writer, cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(tw, strings.Join(parts, "\t"))
}

func amount(v *big.Int) string {
	return domain.FormatAmount(v, amountDigits)
}

func unixTime(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "-"
	}
	return time.Unix(v.Int64(), 0).UTC().Format(time.RFC3339)
}

func percent(r float64) string {
	return fmt.Sprintf("%.1f%%", r*100)
}

func formatProgress(p domain.Progress) string {
	line := fmt.Sprintf("[%d/%d] %s: %s", p.StepIndex+1, p.TotalSteps, p.StepName, txflow.StateDescription(p.State))
	if p.TxHash != "" {
		line += " " + p.TxHash
	}
	return line
}

// follow prints every progress event of wf until it finishes. The returned
// channel is closed once the last event has been written.
func follow(w io.Writer, wf *txflow.Workflow) <-chan struct{} {
	events := wf.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range events {
			fmt.Fprintln(w, formatProgress(p))
		}
	}()
	return done
}

// printSteps lists the steps the workflow got through, so a partially
// completed sequence is visible.
func printSteps(w io.Writer, res *txflow.Result) {
	if res == nil || len(res.Steps) == 0 {
		return
	}
	tw := newTable(w)
	row(tw, "STEP", "NAME", "TX", "CONFIRMED")
	for _, s := range res.Steps {
		tx := s.TxHash
		if tx == "" {
			tx = "-"
		}
		row(tw, s.Index, s.Name, tx, s.Confirmed)
	}
	_ = tw.Flush()
	switch {
	case res.Cancelled:
		fmt.Fprintf(w, "cancelled before step %d, %d step(s) confirmed\n",
			res.FailedStep, len(res.Confirmed()))
	case res.FailedStep >= 0:
		fmt.Fprintf(w, "stopped at step %d (%s), %d step(s) confirmed\n",
			res.FailedStep, res.Kind, len(res.Confirmed()))
	}
}
