package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/plxrun/output"
)

func newReplCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive REPL",
		Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Each submitted block is a complete run: it replaces the staged program and
executes it from scratch. Nothing carries over between blocks.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: a.runRepl,
	}
	cmd.Flags().String("history-file", "", "Line history file path (default: ~/.plxrun_history)")
	return cmd
}

func (a *app) runRepl(cmd *cobra.Command, _ []string) error {
	historyFile, _ := cmd.Flags().GetString("history-file")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".plxrun_history")
	}

	s, err := a.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	ctx := cmd.Context()

	fmt.Fprintln(stderr, s.ctrl.State().Status())
	if err := s.ctrl.Start(ctx); err != nil {
		printRecords(stdout, stderr, s.ctrl.Output().Snapshot())
		return &exitCodeError{code: 1}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             io.NopCloser(cmd.InOrStdin()),
		Stdout:            stdout,
		Stderr:            stderr,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(stderr, "plxrun REPL, %s (type 'exit' to quit, Ctrl+D to exit)\n", s.ctrl.Status())

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == "exit" || trimmed == "quit" {
			return nil
		}

		report, err := s.ctrl.Run(ctx, line+"\n")
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		logReport(a.logger, report)
		printRecords(stdout, stderr, report.Records)

		if text := output.Join(report.Records); text != "" && !strings.HasSuffix(text, "\n") {
			fmt.Fprintln(stdout)
		}
		if report.ExitCode != 0 {
			fmt.Fprintf(stderr, "(exit %d)\n", report.ExitCode)
		}
	}
}
