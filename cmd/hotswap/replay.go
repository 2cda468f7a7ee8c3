package main

import (
	"fmt"

	"github.com/aretw0/hotswap/internal/cli"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay [manifest]",
	Short: "Replay the manifest's scripted steps and check expectations",
	Long: `Mounts the manifest's tree, applies each step's update packet in order and
compares the emitted events and resulting instance table with the step's expectations.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		quiet, _ := cmd.Flags().GetBool("quiet")
		parallel, _ := cmd.Flags().GetInt("parallel")

		results, err := cli.Replay(cmd.Context(), cli.ReplayOptions{
			ManifestPath: manifestPath(cmd, args),
			Output:       cmd.OutOrStdout(),
			Quiet:        quiet,
			Debug:        debug,
			MaxParallel:  parallel,
		})
		if err != nil {
			return err
		}

		failed := 0
		for _, r := range results {
			if !r.Passed() {
				failed++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d steps, %d failed\n", len(results), failed)
		if failed > 0 {
			return fmt.Errorf("replay failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().BoolP("quiet", "q", false, "Only print the summary")
	replayCmd.Flags().Int("parallel", 0, "Independent subtrees applied concurrently per cycle")
}
