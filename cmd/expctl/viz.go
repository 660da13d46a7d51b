package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/causal-labs/internal/viz"
)

// NewVizCmd creates the viz command.
func NewVizCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "viz [file|-]",
		Short: "Render a visualization payload into a chart spec",
		Long: fmt.Sprintf(`Dispatch a visualization payload and print the resulting chart spec.

Supported kinds: %s

Examples:
  expctl viz --kind event_study payload.json`, strings.Join(viz.Kinds(), ", ")),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return printJSON(cmd, viz.DispatchJSON(kind, payload))
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Visualization kind (required)")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}
