package main

import (
	"github.com/spf13/cobra"

	"github.com/ashureev/causal-labs/internal/directive"
)

// NewExtractCmd creates the extract command.
func NewExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [file|-]",
		Short: "Split assistant text into prose and a directive card",
		Long: `Read assistant text and print the first directive card it contains, along
with the remaining prose, as JSON.

Examples:
  expctl extract reply.txt
  pbpaste | expctl extract -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return printJSON(cmd, directive.Extract(string(text)))
		},
	}
}
