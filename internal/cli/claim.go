package cli

import (
	"context"
	"fmt"
	"io"

	"learnquest_backend/pkg/engine/remote"
	"learnquest_backend/pkg/ledger"

	"github.com/spf13/cobra"
)

func NewClaimCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim daily, weekly and milestone rewards",
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "daily <lesson|test>",
		Short:     "Claim a completed daily task",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(ledger.TaskLesson), string(ledger.TaskTest)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClaim(cmd, rootOpts, func(ctx context.Context, e *env) (*remote.ClaimResult, error) {
				return e.engine.Daily.Claim(ctx, ledger.TaskType(args[0]))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "weekly",
		Short: "Claim the 7-day streak bonus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClaim(cmd, rootOpts, func(ctx context.Context, e *env) (*remote.ClaimResult, error) {
				return e.engine.Streak.ClaimBonus(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "milestone <code>",
		Short: "Claim a reached milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClaim(cmd, rootOpts, func(ctx context.Context, e *env) (*remote.ClaimResult, error) {
				return e.engine.Milestones.Claim(ctx, args[0])
			})
		},
	})

	return cmd
}

func runClaim(cmd *cobra.Command, opts *RootOptions, claim func(ctx context.Context, e *env) (*remote.ClaimResult, error)) error {
	return withEnv(opts, func(ctx context.Context, e *env) error {
		if err := e.requireAccount(); err != nil {
			return err
		}
		res, err := claim(ctx, e)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), opts, res, func(w io.Writer) {
			if res.Status == remote.ClaimAlreadyClaimed {
				fmt.Fprintln(w, "Already claimed.")
				return
			}
			fmt.Fprintf(w, "+%d XP, total %d (level %d)\n", res.XPAwarded, res.NewXP, res.NewLevel)
		})
	})
}
