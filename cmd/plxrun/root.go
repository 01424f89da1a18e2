package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caffeineduck/plxrun/internal/config"
	"github.com/caffeineduck/plxrun/internal/logging"
)

// exitCodeError ends the process with code without printing anything more.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app carries state resolved before any subcommand runs.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "plxrun [file]",
		Short: "Run Protolex programs in an embedded WebAssembly interpreter",
		Long: `plxrun - edit and run Protolex programs against a sandboxed WebAssembly build
of the interpreter.

Source is staged into the interpreter's virtual filesystem and executed;
stdout, stderr and failures are captured in order. Run code once, from a REPL,
in a terminal editor, on every save, or over HTTP.`,
		Args: cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return a.load(cmd)
		},
		RunE:          a.runRun, // default to run command behavior
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Config file (default: ./plxrun.yaml)")
	pf.StringP("module", "m", "", "Path to the interpreter .wasm module")
	pf.Bool("no-cache", false, "Disable compilation cache")
	pf.String("cache-dir", "", "Compilation cache directory")
	pf.String("memory", "", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")
	pf.Duration("timeout", 0, "Per-run timeout (0 = none)")
	pf.String("program-path", "", "Virtual path source is staged at")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.Bool("history", false, "Record runs in the history database")
	pf.String("history-path", "", "History database path")

	addRunFlags(rootCmd)

	rootCmd.AddCommand(
		newRunCmd(a),
		newReplCmd(a),
		newEditCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newHistoryCmd(a),
		newCacheCmd(a),
	)

	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	if cfg.File != "" {
		logger.Debug("using config file", zap.String("path", cfg.File))
	}
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			return ec.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
