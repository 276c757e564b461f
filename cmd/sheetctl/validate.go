package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gmforge/sheetengine/pkg/vocab"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <vocabulary.yaml> [more files...]",
		Short: "Validate ruleset vocabulary files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		v, err := vocab.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s: %d fields, %d invariants, %d derived)\n",
			path, v.System, len(v.Fields), len(v.Invariants), len(v.Derived))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed validation", failed, len(args))
	}
	return nil
}
