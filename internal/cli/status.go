package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/dappwatch/internal/control"
	"github.com/vietddude/dappwatch/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Refresh once and print jobs, bank history and the counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *control.Session) error {
			printStatus(cmd.OutOrStdout(), s)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(out io.Writer, s *control.Session) {
	snap := s.Snapshot()
	_, _ = fmt.Fprintf(out, "session %s  caller %s  generation %d  head %d\n\n",
		s.ID(), s.Caller(), snap.Generation, snap.Head)

	printJobs(out, s.Jobs())

	if balance, ok := s.Balance(); ok {
		_, _ = fmt.Fprintf(out, "\nbank balance: %s ETH\n", domain.FormatEther(balance))
	}
	printLedger(out, s.Ledger())

	if current, history := s.Counter(); current != nil {
		_, _ = fmt.Fprintf(out, "\ncounter: %s (%d changes)\n", current, len(history))
	}

	if anomalies := snap.Projection.Anomalies; len(anomalies) > 0 {
		_, _ = fmt.Fprintf(out, "\n%d anomalies:\n", len(anomalies))
		for _, a := range anomalies {
			_, _ = fmt.Fprintf(out, "  %s\n", a)
		}
	}
}

func printJobs(out io.Writer, jobs []control.JobView) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tSTATE\tPRICE (ETH)\tAUTHOR\tWORKER\tACTION\tDESCRIPTION")
	for _, j := range jobs {
		action := ""
		switch {
		case j.CanTake:
			action = "take"
		case j.CanPay:
			action = "pay"
		}
		worker := "-"
		if j.HasWorker() {
			worker = j.Worker.String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.State, domain.FormatEther(j.Price), j.Author, worker, action, j.Description)
	}
	_ = w.Flush()
}

func printLedger(out io.Writer, entries []domain.LedgerEntry) {
	if len(entries) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "BLOCK\tAMOUNT (ETH)\tTX")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", e.BlockNumber, e.Ether(), e.TxHash)
	}
	_ = w.Flush()
}

func printHandle(out io.Writer, h domain.TransactionHandle) {
	_, _ = fmt.Fprintf(out, "%s %s", h.Hash, h.Status)
	if h.BlockNumber > 0 {
		_, _ = fmt.Fprintf(out, " in block %d", h.BlockNumber)
	}
	_, _ = fmt.Fprintln(out)
}
