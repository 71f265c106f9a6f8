package cli

import (
	"context"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/vietddude/dappwatch/internal/control"
	"github.com/vietddude/dappwatch/internal/core/domain"
)

var bankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Deposit to and withdraw from the bank contract",
}

var bankBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the caller's bank balance and history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *control.Session) error {
			printBalance(cmd, s)
			return nil
		})
	},
}

var bankDepositCmd = &cobra.Command{
	Use:   "deposit <ether>",
	Short: "Deposit ether into the bank",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bankWrite(cmd, args[0], (*control.Session).Deposit)
	},
}

var bankWithdrawCmd = &cobra.Command{
	Use:   "withdraw <ether>",
	Short: "Withdraw ether from the bank",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bankWrite(cmd, args[0], (*control.Session).Withdraw)
	},
}

type bankOp func(s *control.Session, ctx context.Context, amount *big.Int) (domain.TransactionHandle, error)

func bankWrite(cmd *cobra.Command, arg string, op bankOp) error {
	amount, err := domain.ParseEther(arg)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", arg, err)
	}
	return withSession(cmd, func(ctx context.Context, s *control.Session) error {
		h, err := op(s, ctx, amount)
		if err := report(cmd, h, err); err != nil {
			return err
		}
		printBalance(cmd, s)
		return nil
	})
}

func printBalance(cmd *cobra.Command, s *control.Session) {
	out := cmd.OutOrStdout()
	balance, ok := s.Balance()
	if !ok {
		_, _ = fmt.Fprintln(out, "bank balance unavailable")
		return
	}
	_, _ = fmt.Fprintf(out, "bank balance: %s ETH\n", domain.FormatEther(balance))
	printLedger(out, s.Ledger())
}

func init() {
	bankCmd.AddCommand(bankBalanceCmd, bankDepositCmd, bankWithdrawCmd)
	rootCmd.AddCommand(bankCmd)
}
