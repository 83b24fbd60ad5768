package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"learnquest_backend/pkg/engine"
	"learnquest_backend/pkg/engine/store"

	"github.com/spf13/cobra"
)

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile local progress with the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, func(ctx context.Context, e *env) error {
				if err := e.requireAccount(); err != nil {
					return err
				}
				res, err := e.engine.Reconciler.Sync(ctx)
				if err != nil {
					return err
				}
				out := map[string]any{
					"localXP":    res.LocalXP,
					"remoteXP":   res.RemoteXP,
					"resolvedXP": res.ResolvedXP,
					"pushed":     res.Pushed,
				}
				return emit(cmd.OutOrStdout(), rootOpts, out, func(w io.Writer) {
					fmt.Fprintf(w, "local %d, remote %d => %d XP", res.LocalXP, res.RemoteXP, res.ResolvedXP)
					if res.Pushed {
						fmt.Fprint(w, " (pushed)")
					}
					fmt.Fprintln(w)
				})
			})
		},
	}
}

type statusView struct {
	State  store.State       `json:"state"`
	Energy int               `json:"projectedEnergy"`
	Daily  *engine.DailyView `json:"daily"`
	Streak engine.Window     `json:"streak"`
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show level, energy, daily tasks and streak",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, func(ctx context.Context, e *env) error {
				daily, err := e.engine.Daily.Progress(ctx)
				if err != nil {
					return err
				}
				view := statusView{
					State:  e.engine.Store.Snapshot(),
					Energy: e.engine.Energy.Projected(e.engine.Clock.Now()),
					Daily:  daily,
					Streak: e.engine.Streak.Window(),
				}
				return emit(cmd.OutOrStdout(), rootOpts, view, func(w io.Writer) {
					p := view.State.Progress()
					who := "anonymous"
					if view.State.IsAuthenticated {
						who = fmt.Sprintf("user #%d", view.State.BoundUserID)
					}
					fmt.Fprintf(w, "Account: %s\n", who)
					fmt.Fprintf(w, "Level:   %d %s %d/%d XP (total %d)\n",
						p.Level, progressBar(p, 20), p.XPIntoLevel, p.XPRequiredForLevel, view.State.TotalXP)
					fmt.Fprintf(w, "Energy:  %d/%d", view.Energy, view.State.MaxEnergy)
					if next := e.engine.Energy.NextRegenAt(); !next.IsZero() {
						fmt.Fprintf(w, " (next at %s)", next.Local().Format("15:04"))
					}
					fmt.Fprintln(w)
					fmt.Fprintf(w, "Today:   %s lessons %d/%d [%s], tests %d/%d [%s]\n",
						daily.Date,
						daily.LessonsToday, daily.LessonTarget, daily.LessonState,
						daily.TestsToday, daily.TestTarget, daily.TestState)
					renderWindow(w, view.Streak)
				})
			})
		},
	}
}

func NewLessonCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lesson <lesson-id>",
		Short: "Mark a lesson as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, func(ctx context.Context, e *env) error {
				res, err := e.engine.CompleteLesson(ctx, args[0])
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), rootOpts, res, func(w io.Writer) {
					if res.AlreadyCompleted {
						fmt.Fprintf(w, "Lesson %s was already completed\n", res.LessonID)
						return
					}
					fmt.Fprintf(w, "+%d XP, total %d (level %d)\n", res.XPAwarded, res.NewXP, res.NewLevel)
				})
			})
		},
	}
}

func NewMilestonesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "milestones",
		Short: "List lesson milestones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, func(ctx context.Context, e *env) error {
				list, err := e.engine.Milestones.List(ctx)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), rootOpts, list, func(w io.Writer) {
					for _, m := range list {
						state := "locked"
						switch {
						case m.IsClaimed:
							state = "claimed"
						case m.IsReached:
							state = "ready"
						}
						fmt.Fprintf(w, "%-12s %3d/%-3d %-7s +%d XP %s\n",
							m.Code, m.Progress, m.TargetCount, state, m.XPReward, m.TitleReward)
					}
				})
			})
		},
	}
}

type energyOptions struct {
	*RootOptions
	Watch bool
}

func NewEnergyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &energyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "energy",
		Short: "Show energy, or keep polling with --watch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(opts.RootOptions, func(ctx context.Context, e *env) error {
				if !opts.Watch {
					en, err := e.engine.Energy.Refresh(ctx)
					if err != nil {
						return err
					}
					return emit(cmd.OutOrStdout(), opts.RootOptions, en, func(w io.Writer) {
						fmt.Fprintf(w, "Energy %d/%d\n", en.CurrentEnergy, en.MaxEnergy)
					})
				}

				watchCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				last := -1
				unsubscribe := e.engine.Store.Subscribe(func(st store.State) {
					if st.CurrentEnergy != last {
						last = st.CurrentEnergy
						fmt.Fprintf(cmd.OutOrStdout(), "Energy %d/%d\n", st.CurrentEnergy, st.MaxEnergy)
					}
				})
				defer unsubscribe()
				e.engine.Run(watchCtx)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "poll until interrupted")
	return cmd
}

type leaderboardOptions struct {
	*RootOptions
	Limit int
}

func NewLeaderboardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &leaderboardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top learners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(opts.RootOptions, func(ctx context.Context, e *env) error {
				if err := e.requireAccount(); err != nil {
					return err
				}
				list, err := e.engine.Reconciler.Leaderboard(ctx, opts.Limit)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts.RootOptions, list, func(w io.Writer) {
					for _, entry := range list {
						fmt.Fprintf(w, "%3d. %-20s %6d XP  lv %d\n", entry.Rank, entry.DisplayName, entry.TotalXP, entry.Level)
					}
				})
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "number of entries")
	return cmd
}
