package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/plxrun/internal/tui"
)

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit [file]",
		Short: "Open the terminal editor",
		Long: `Open a full-screen editor with an output pane and a status line.

The runtime loads in the background; ctrl+r runs the buffer once it is
ready. ctrl+s writes the buffer back to the file. A file that does not exist
yet is created on first save.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path, source string
			if len(args) > 0 {
				path = args[0]
				data, err := os.ReadFile(path)
				if err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				source = string(data)
			}

			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			return tui.Run(s.ctrl, path, source)
		},
	}
}
