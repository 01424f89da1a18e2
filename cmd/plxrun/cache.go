package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/plxrun/executor"
)

func newCacheCmd(a *app) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Compilation cache management commands",
	}

	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "dir",
			Short: "Print the compilation cache directory",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), a.cacheDir())
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Clear compiled modules",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dir := a.cacheDir()
				if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to clear cache: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
				return nil
			},
		},
	)
	return cacheCmd
}

func (a *app) cacheDir() string {
	if a.cfg.Runtime.CacheDir != "" {
		return a.cfg.Runtime.CacheDir
	}
	return executor.DefaultCacheDir()
}
