package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vietddude/dappwatch/internal/control"
	"github.com/vietddude/dappwatch/internal/core/domain"
)

var jobPrice string

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Post, take and pay for jobs",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs with the actions available to the caller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *control.Session) error {
			printJobs(cmd.OutOrStdout(), s.Jobs())
			return nil
		})
	},
}

var jobAddCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Post a job paying --price ether",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := domain.ParseEther(jobPrice)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", jobPrice, err)
		}
		return withSession(cmd, func(ctx context.Context, s *control.Session) error {
			h, err := s.AddJob(ctx, args[0], price)
			if err := report(cmd, h, err); err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), s.Jobs())
			return nil
		})
	},
}

var jobTakeCmd = &cobra.Command{
	Use:   "take <id>",
	Short: "Take an available job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *control.Session) error {
			h, err := s.TakeJob(ctx, args[0])
			return report(cmd, h, err)
		})
	},
}

var jobFinishCmd = &cobra.Command{
	Use:   "finish <id>",
	Short: "Mark a taken job finished and pay its worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *control.Session) error {
			h, err := s.FinishJob(ctx, args[0])
			return report(cmd, h, err)
		})
	},
}

// report prints a write's outcome.
func report(cmd *cobra.Command, h domain.TransactionHandle, err error) error {
	if err != nil {
		return err
	}
	printHandle(cmd.OutOrStdout(), h)
	return nil
}

func init() {
	jobAddCmd.Flags().StringVar(&jobPrice, "price", "", "price in ether, e.g. 0.5")
	_ = jobAddCmd.MarkFlagRequired("price")

	jobCmd.AddCommand(jobListCmd, jobAddCmd, jobTakeCmd, jobFinishCmd)
	rootCmd.AddCommand(jobCmd)
}
