package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/plxrun/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded with --history (or history.enabled in the config file),
newest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			store, ok, err := a.openHistory()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Started", "Duration", "Outcome", "Exit", "Source"})
			for _, r := range runs {
				t.AppendRow(table.Row{
					r.ID,
					r.StartedAt.Local().Format(time.DateTime),
					r.Duration.Round(time.Millisecond),
					r.Outcome,
					r.ExitCode,
					preview(r.Source, 40),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 = all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show id",
		Short: "Show the source and output of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, ok, err := a.openHistory()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", history.ErrNotFound, args[0])
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s, exit %d, %s)\n", run.ID, run.Outcome, run.ExitCode, run.Duration.Round(time.Millisecond))
			fmt.Fprintln(out, "Source:")
			fmt.Fprintln(out, indent(run.Source))
			fmt.Fprintln(out, "Output:")
			for _, rec := range run.Records {
				fmt.Fprintf(out, "  %-9s %s\n", rec.Channel, strings.TrimSuffix(rec.Text, "\n"))
			}
			return nil
		},
	})
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keep, _ := cmd.Flags().GetInt("keep")
			store, ok, err := a.openHistory()
			if err != nil || !ok {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs.\n", n)
			return nil
		},
	}
	pruneCmd.Flags().Int("keep", 100, "Number of runs to keep")
	cmd.AddCommand(pruneCmd)

	return cmd
}

// openHistory opens the configured store if it exists. ok is false when no
// run has ever been recorded there.
func (a *app) openHistory() (*history.Store, bool, error) {
	if _, err := os.Stat(a.cfg.History.Path); errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	store, err := history.Open(a.cfg.History.Path, a.logger.Named("history"))
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

func preview(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func indent(s string) string {
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
