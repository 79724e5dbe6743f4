package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/kthreads/internal/scheduler"
	"github.com/me/kthreads/pkg/model"
)

func newSessionsCmd() *cobra.Command {
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions [session_id]",
		Short: "List recorded sessions, or show one with its thread table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				return showSession(cmd, args[0])
			}

			resp, err := client.Get("/api/v1/sessions/", url.Values{
				"state": {state},
				"limit": {strconv.Itoa(limit)},
			})
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			var sessions []model.Session
			if err := json.Unmarshal(resp.Data, &sessions); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				return nil
			}

			fmt.Fprintf(out, "%-41s  %-10s  %-28s  %8s  %s\n", "ID", "STATE", "SCENARIO", "TICKS", "STARTED")
			fmt.Fprintf(out, "%-41s  %-10s  %-28s  %8s  %s\n", "--", "-----", "--------", "-----", "-------")
			for _, s := range sessions {
				fmt.Fprintf(out, "%-41s  %-10s  %-28s  %8s  %s\n",
					s.ID, s.State, s.Scenario, humanize.Comma(s.Ticks), humanize.Time(s.StartedAt))
			}
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(sessions), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Only sessions in this state (RUNNING, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")
	return cmd
}

func showSession(cmd *cobra.Command, id string) error {
	out := cmd.OutOrStdout()

	resp, err := client.Get("/api/v1/sessions/"+id, nil)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	var sess model.Session
	if err := json.Unmarshal(resp.Data, &sess); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Fprintf(out, "Session:  %s\n", sess.ID)
	fmt.Fprintf(out, "  Scenario: %s\n", sess.Scenario)
	fmt.Fprintf(out, "  State:    %s\n", sess.State)
	if sess.Error != "" {
		fmt.Fprintf(out, "  Error:    %s\n", sess.Error)
	}
	for _, f := range sess.Failures {
		fmt.Fprintf(out, "  Failure:  %s\n", f)
	}
	scheduler.WriteStats(out, sess.Stats)

	resp, err = client.Get("/api/v1/sessions/"+id+"/threads", nil)
	if err != nil {
		return fmt.Errorf("get threads: %w", err)
	}
	var threads []model.ThreadInfo
	if err := json.Unmarshal(resp.Data, &threads); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if len(threads) == 0 {
		return nil
	}
	fmt.Fprintf(out, "\n%5s  %-16s  %-8s  %4s  %4s  %9s\n", "TID", "NAME", "STATUS", "BASE", "EFF", "RUN TICKS")
	for _, th := range threads {
		fmt.Fprintf(out, "%5d  %-16s  %-8s  %4d  %4d  %9s\n",
			th.ID, th.Name, th.Status, th.BasePriority, th.EffectivePriority, humanize.Comma(int64(th.RunTicks)))
	}
	return nil
}

func newEventsCmd() *cobra.Command {
	var kind string
	var thread, limit, offset int

	cmd := &cobra.Command{
		Use:   "events <session_id>",
		Short: "Print the scheduler events of a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{
				"kind":   {kind},
				"limit":  {strconv.Itoa(limit)},
				"offset": {strconv.Itoa(offset)},
			}
			if thread > 0 {
				query.Set("thread", strconv.Itoa(thread))
			}
			resp, err := client.Get("/api/v1/sessions/"+args[0]+"/events", query)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			var events []model.Event
			if err := json.Unmarshal(resp.Data, &events); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			out := cmd.OutOrStdout()
			printEvents(out, events)
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown, next --offset %d)\n",
					len(events), resp.Pagination.Total, offset+len(events))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only events of this kind (create, switch, donate, ...)")
	cmd.Flags().IntVar(&thread, "thread", 0, "Only events of this thread ID")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events")
	cmd.Flags().IntVar(&offset, "offset", 0, "Events to skip")
	return cmd
}
