package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the expctl root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "expctl",
		Short:         "Inspect and drive experiment runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		NewExtractCmd(),
		NewWatchCmd(),
		NewMergeCmd(),
		NewVizCmd(),
	)
	return root
}

// readInput reads the named file, or stdin when no file or "-" is given.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
