package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/causal-labs/internal/document"
)

// NewMergeCmd creates the merge command.
func NewMergeCmd() *cobra.Command {
	var snapshotFile string
	var fragment string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a fragment into a dashboard snapshot",
		Long: `Apply an update fragment to a stored dashboard snapshot and print the result.
Without --snapshot the fragment is merged into a fresh dashboard.

Examples:
  expctl merge --fragment '{"progress":40}'
  expctl merge --snapshot dashboard.json --fragment 'plain text results'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, snapshotFile, fragment)
		},
	}

	cmd.Flags().StringVar(&snapshotFile, "snapshot", "", "Snapshot JSON file (default: fresh dashboard)")
	cmd.Flags().StringVar(&fragment, "fragment", "", "Update fragment (required)")
	_ = cmd.MarkFlagRequired("fragment")

	return cmd
}

func runMerge(cmd *cobra.Command, snapshotFile, fragment string) error {
	prev := document.NewSnapshot(document.DefaultSteps)
	if snapshotFile != "" {
		data, err := os.ReadFile(snapshotFile)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		parsed, ok := document.ParseSnapshot(string(data))
		if !ok {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: snapshot is not a JSON object, starting from {}")
		}
		prev = parsed
	}

	merged := document.Merge(prev, document.ParseFragment(fragment))
	out, err := document.Encode(merged)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
