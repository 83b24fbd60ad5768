package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type accountOptions struct {
	*RootOptions
	Name     string
	Email    string
	Password string
	Timezone string
}

func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &accountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Example: `  progressctl register --name ada --email ada@example.com --password secret123
  progressctl register --name ada --email ada@example.com --password secret123 --timezone Europe/Berlin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(opts.RootOptions, func(ctx context.Context, e *env) error {
				tz := opts.Timezone
				if tz == "" {
					tz = deviceTimezone(e.v)
				}
				id, err := e.client.Register(ctx, opts.Name, opts.Email, opts.Password, tz)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts.RootOptions, map[string]uint{"id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "Registered account #%d, now run `progressctl login`\n", id)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password, at least 6 characters (required)")
	cmd.Flags().StringVar(&opts.Timezone, "timezone", "", "IANA timezone used for day boundaries")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &accountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and reconcile local progress with the account",
		Long: `Sign in and bind this device to the account.

Progress made anonymously on this device is kept and pushed to the account.
Signing in as a different account than the one previously bound wipes the
local progress first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(opts.RootOptions, func(ctx context.Context, e *env) error {
				res, err := e.client.Login(ctx, opts.Email, opts.Password)
				if err != nil {
					return err
				}
				if err := e.saveCredentials(res.Token, res.UserID); err != nil {
					return fmt.Errorf("save credentials: %w", err)
				}
				wiped, err := e.engine.Bind(ctx, res.UserID, false)
				if err != nil {
					return err
				}
				st := e.engine.Store.Snapshot()
				out := map[string]any{"userId": res.UserID, "wipedLocal": wiped, "totalXP": st.TotalXP, "level": st.Level()}
				return emit(cmd.OutOrStdout(), opts.RootOptions, out, func(w io.Writer) {
					if wiped {
						fmt.Fprintln(w, "Different account than before, local progress was reset.")
					}
					fmt.Fprintf(w, "Logged in as #%d, level %d (%d XP)\n", res.UserID, st.Level(), st.TotalXP)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "email (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the token; local progress stays on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, func(ctx context.Context, e *env) error {
				e.engine.Store.Bind(0, true)
				e.engine.Cache.Clear()
				if err := e.saveCredentials("", 0); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
				return nil
			})
		},
	}
}
