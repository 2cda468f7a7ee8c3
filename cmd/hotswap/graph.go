package main

import (
	"fmt"

	"github.com/aretw0/hotswap/internal/cli"
	"github.com/aretw0/hotswap/internal/config"
	"github.com/aretw0/hotswap/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [manifest]",
	Short: "Export the module graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the manifest's module graph. Boundaries are
highlighted; with --overlay the initial tree is mounted and live instance counts
and placeholders are drawn on top.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withOverlay, _ := cmd.Flags().GetBool("overlay")

		m, err := config.Load(manifestPath(cmd, args))
		if err != nil {
			return err
		}

		var overlay *graph.GraphOverlay
		if withOverlay {
			s, err := cli.NewSession(cmd.Context(), m, cli.SessionOptions{})
			if err != nil {
				return err
			}
			overlay = &graph.GraphOverlay{Instances: s.Coordinator.Instances()}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(m.Modules, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("overlay", false, "Mount the initial tree and annotate instances")
}
