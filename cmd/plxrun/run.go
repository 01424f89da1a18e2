package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a program once",
		Long: `Run a Protolex program once and print its output.

Code can be provided via:
  - File argument: plxrun run hello.plx
  - Inline flag: plxrun run -c 'io.write(io.stdout, "hi\n")'
  - Stdin: cat hello.plx | plxrun run

Program stdout goes to stdout; stderr and failures go to stderr. The exit
code is the program's, or 1 if the runtime could not load or the run failed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.runRun,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
}

// readSource resolves the program from -c, a file argument or piped stdin.
// ok is false when there is nothing to run.
func readSource(cmd *cobra.Command, args []string) (source string, ok bool, err error) {
	code, _ := cmd.Flags().GetString("code")

	switch {
	case code != "":
		return code, true, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	}

	in := cmd.InOrStdin()
	if f, isFile := in.(*os.File); isFile && term.IsTerminal(int(f.Fd())) {
		// no piped input
		return "", false, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", false, fmt.Errorf("read stdin: %w", err)
	}
	return string(data), len(data) > 0, nil
}

func (a *app) runRun(cmd *cobra.Command, args []string) error {
	source, ok, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if !ok {
		return cmd.Help()
	}

	s, err := a.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	ctx := cmd.Context()

	if err := s.ctrl.Start(ctx); err != nil {
		printRecords(stdout, stderr, s.ctrl.Output().Snapshot())
		return &exitCodeError{code: 1}
	}

	report, err := s.ctrl.Run(ctx, source)
	if err != nil {
		return err
	}
	logReport(a.logger, report)
	printRecords(stdout, stderr, report.Records)

	switch {
	case report.Failed():
		return &exitCodeError{code: 1}
	case report.ExitCode != 0:
		return &exitCodeError{code: int(report.ExitCode)}
	}
	return nil
}
