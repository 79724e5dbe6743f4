package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/me/kthreads/internal/scenario"
	"github.com/me/kthreads/internal/scheduler"
	"github.com/me/kthreads/internal/store"
	"github.com/me/kthreads/pkg/model"
)

func newRunCmd() *cobra.Command {
	var noRecord, showStats, showEvents bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run scenarios on a fresh kernel and check their expectations",
		Long: `Runs each scenario file on its own freshly booted kernel, prints whether
its expectations held, and records the session (events, statistics and the
final thread table) in the trace database unless --no-record is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var st store.Store
			if !noRecord {
				sqlite, err := openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer sqlite.Close()
				st = sqlite
			}

			engine := scenario.NewEngine(cfg.Kernel.Scheduler(), logger)
			failed := 0
			for _, path := range args {
				sc, err := scenario.Load(path)
				if err != nil {
					return err
				}
				res, sessID, err := runOne(cmd.Context(), engine, st, sc, timeout)
				if err != nil {
					return err
				}
				printResult(out, res, sessID)
				if showStats {
					scheduler.WriteStats(out, res.Stats)
				}
				if showEvents {
					printEvents(out, res.Events)
				}
				if !res.Passed() {
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not record sessions in the trace database")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print kernel statistics after each scenario")
	cmd.Flags().BoolVar(&showEvents, "events", false, "Print every scheduler event after each scenario")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Wall-clock limit per scenario")

	return cmd
}

// recordTimeout bounds the writes that record one session.
const recordTimeout = 30 * time.Second

// runOne runs sc and, when st is set, records it as a new session. The
// recording does not share the run's deadline, so a scenario that times out
// is still recorded as FAILED.
func runOne(ctx context.Context, engine *scenario.Engine, st store.Store, sc *scenario.Scenario, timeout time.Duration) (*scenario.Result, string, error) {
	recordCtx, cancelRecord := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancelRecord()

	var sess *model.Session
	if st != nil {
		sess = &model.Session{
			ID:        "sess_" + uuid.New().String(),
			Scenario:  sc.Name,
			State:     model.SessionRunning,
			StartedAt: time.Now().UTC(),
		}
		if err := st.CreateSession(recordCtx, sess); err != nil {
			return nil, "", fmt.Errorf("record session: %w", err)
		}
	}

	runCtx, cancelRun := context.WithTimeout(ctx, timeout)
	res, err := engine.Run(runCtx, sc)
	cancelRun()
	if err != nil {
		if sess != nil {
			failSession(recordCtx, st, sess, err)
		}
		return nil, "", err
	}
	if sess == nil {
		return res, "", nil
	}

	sess.State = model.SessionCompleted
	if !res.Passed() {
		sess.State = model.SessionFailed
	}
	sess.Ticks = res.Ticks
	sess.Stats = res.Stats
	sess.Failures = res.Failures
	if res.Err != nil {
		sess.Error = res.Err.Error()
	}
	if err := st.AppendEvents(recordCtx, sess.ID, res.Events); err != nil {
		err = fmt.Errorf("record events: %w", err)
		failSession(recordCtx, st, sess, err)
		return nil, "", err
	}
	if err := st.SaveThreads(recordCtx, sess.ID, res.Threads); err != nil {
		err = fmt.Errorf("record threads: %w", err)
		failSession(recordCtx, st, sess, err)
		return nil, "", err
	}
	if err := finishSession(recordCtx, st, sess); err != nil {
		return nil, "", err
	}
	return res, sess.ID, nil
}

// failSession marks sess FAILED with cause. The session keeps the kernel
// error when there is one.
func failSession(ctx context.Context, st store.Store, sess *model.Session, cause error) {
	sess.State = model.SessionFailed
	if sess.Error == "" {
		sess.Error = cause.Error()
	} else {
		sess.Failures = append(sess.Failures, cause.Error())
	}
	if err := finishSession(ctx, st, sess); err != nil {
		logger.Error("session left unfinished", "id", sess.ID, "error", err)
	}
}

func finishSession(ctx context.Context, st store.Store, sess *model.Session) error {
	now := time.Now().UTC()
	sess.FinishedAt = &now
	if err := st.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	logger.Info("session recorded", "id", sess.ID, "scenario", sess.Scenario, "state", sess.State)
	return nil
}

func printResult(w io.Writer, res *scenario.Result, sessID string) {
	verdict := "PASS"
	if !res.Passed() {
		verdict = "FAIL"
	}
	fmt.Fprintf(w, "%s  %-28s %s ticks, %s switches, %s events, %s\n",
		verdict, res.Scenario,
		humanize.Comma(res.Ticks),
		humanize.Comma(int64(res.Stats.ContextSwitches)),
		humanize.Comma(int64(len(res.Events))),
		res.Duration.Round(time.Microsecond))
	if sessID != "" {
		fmt.Fprintf(w, "      session %s\n", sessID)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "      %s\n", f)
	}
}

func printEvents(w io.Writer, events []model.Event) {
	fmt.Fprintf(w, "%8s  %6s  %-9s  %-16s  %3s  %s\n", "SEQ", "TICK", "KIND", "THREAD", "PRI", "DETAIL")
	for _, ev := range events {
		fmt.Fprintf(w, "%8d  %6d  %-9s  %-16s  %3d  %s\n",
			ev.Seq, ev.Tick, ev.Kind, fmt.Sprintf("%s(%d)", ev.Thread, ev.ThreadID), ev.Priority, ev.Detail)
	}
}
