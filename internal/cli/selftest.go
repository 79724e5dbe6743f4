package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/kthreads/internal/scheduler"
	"github.com/me/kthreads/internal/synch"
)

func newSelfTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Boot a kernel and play semaphore ping-pong between two threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			k, err := scheduler.New(cfg.Kernel.Scheduler(), logger)
			if err != nil {
				return err
			}

			var testErr error
			err = k.Run(cmd.Context(), func() {
				fmt.Fprint(out, "Testing semaphores...")
				if testErr = synch.SelfTest(k); testErr == nil {
					fmt.Fprintln(out, "done.")
				}
			})
			if err != nil {
				return fmt.Errorf("kernel: %w", err)
			}
			if testErr != nil {
				return fmt.Errorf("semaphore self test: %w", testErr)
			}
			return k.PrintStats(out)
		},
	}
}
