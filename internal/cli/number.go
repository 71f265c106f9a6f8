package cli

import (
	"context"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/vietddude/dappwatch/internal/control"
)

var numberCmd = &cobra.Command{
	Use:   "number",
	Short: "Read and set the counter contract",
}

var numberShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored number and who changed it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *control.Session) error {
			printCounter(cmd, s)
			return nil
		})
	},
}

var numberSetCmd = &cobra.Command{
	Use:   "set <n>",
	Short: "Store a new number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, ok := new(big.Int).SetString(args[0], 10)
		if !ok {
			return fmt.Errorf("invalid number %q", args[0])
		}
		return withSession(cmd, func(ctx context.Context, s *control.Session) error {
			h, err := s.SetNumber(ctx, n)
			if err := report(cmd, h, err); err != nil {
				return err
			}
			printCounter(cmd, s)
			return nil
		})
	},
}

func printCounter(cmd *cobra.Command, s *control.Session) {
	out := cmd.OutOrStdout()
	current, history := s.Counter()
	if current == nil {
		_, _ = fmt.Fprintln(out, "counter unavailable")
		return
	}
	_, _ = fmt.Fprintf(out, "number: %s\n", current)
	for _, c := range history {
		_, _ = fmt.Fprintf(out, "  block %d: %s by %s\n", c.BlockNumber, c.Value, c.By)
	}
}

func init() {
	numberCmd.AddCommand(numberShowCmd, numberSetCmd)
	rootCmd.AddCommand(numberCmd)
}
