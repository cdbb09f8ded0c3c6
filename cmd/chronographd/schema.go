package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chronograph-db/chronograph/internal/chrono/schema"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema registry files",
	}
	cmd.AddCommand(newSchemaCheckCommand())
	return cmd
}

func newSchemaCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a schema registry file and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := schema.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", args[0])
			fmt.Fprintf(out, "strict_properties: %v\n", reg.Strict())
			fmt.Fprintf(out, "node labels (%d): %s\n", len(reg.NodeLabels()), strings.Join(reg.NodeLabels(), ", "))
			fmt.Fprintf(out, "edge types (%d): %s\n", len(reg.EdgeTypes()), strings.Join(reg.EdgeTypes(), ", "))
			return nil
		},
	}
}
