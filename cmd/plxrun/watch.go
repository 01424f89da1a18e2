package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/plxrun/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch file",
		Short: "Re-run a file every time it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debounce, _ := cmd.Flags().GetDuration("debounce")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
			if err := s.ctrl.Start(ctx); err != nil {
				printRecords(stdout, stderr, s.ctrl.Output().Snapshot())
				return &exitCodeError{code: 1}
			}

			w := watch.New(args[0], func(ctx context.Context, source string) {
				fmt.Fprintf(stderr, "── %s %s ──\n", args[0], time.Now().Format("15:04:05"))
				report, err := s.ctrl.Run(ctx, source)
				if err != nil {
					fmt.Fprintf(stderr, "Error: %v\n", err)
					return
				}
				logReport(a.logger, report)
				printRecords(stdout, stderr, report.Records)
				if report.ExitCode != 0 {
					fmt.Fprintf(stderr, "(exit %d)\n", report.ExitCode)
				}
			}, watch.WithDebounce(debounce), watch.WithLogger(a.logger.Named("watch")))

			return w.Run(ctx)
		},
	}
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before re-running")
	return cmd
}
