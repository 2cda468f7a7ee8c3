package main

import (
	"fmt"

	"github.com/aretw0/hotswap/internal/config"
	"github.com/aretw0/hotswap/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Check the module graph for consistency",
	Long: `Reports broken import edges, dependency cycles without a boundary and modules whose
edits would always force a full reload.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")

		m, err := config.Load(manifestPath(cmd, args))
		if err != nil {
			return err
		}

		report := validator.ValidateGraph(m.Modules)
		out := cmd.OutOrStdout()
		for _, w := range report.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		if err := report.Err(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if strict && len(report.Warnings) > 0 {
			return fmt.Errorf("validation failed: %d warnings", len(report.Warnings))
		}
		fmt.Fprintln(out, "Graph is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
}
