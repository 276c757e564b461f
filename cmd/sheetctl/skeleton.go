package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gmforge/sheetengine/pkg/sheet"
)

func skeletonCmd() *cobra.Command {
	var asSchema bool
	cmd := &cobra.Command{
		Use:   "skeleton <blueprint.json>",
		Short: "Compile a blueprint and print its zero-filled skeleton",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkeleton(cmd, args[0], asSchema)
		},
	}
	cmd.Flags().BoolVar(&asSchema, "json-schema", false, "print the generation JSON Schema instead of the skeleton")
	return cmd
}

func runSkeleton(cmd *cobra.Command, path string, asSchema bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var bp sheet.Blueprint
	if err := json.Unmarshal(data, &bp); err != nil {
		return fmt.Errorf("parsing blueprint: %w", err)
	}

	spec := sheet.Hydrate(&bp)
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("compiled spec is invalid: %w", err)
	}
	schema := sheet.Compile(spec)

	var out any = schema.Skeleton()
	if asSchema {
		out = schema.JSONSchema()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
