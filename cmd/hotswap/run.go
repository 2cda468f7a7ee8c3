package main

import (
	"time"

	"github.com/aretw0/hotswap/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [manifest]",
	Short: "Mount the manifest's tree and apply update packets",
	Long: `Mounts the component tree described by the manifest, then reads update packets
(one JSON object per line) from stdin and applies them. With --watch, the manifest
itself is polled and every saved version bump is applied as an update.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		headless, _ := cmd.Flags().GetBool("headless")
		jsonMode, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")
		parallel, _ := cmd.Flags().GetInt("parallel")

		return cli.Execute(cli.RunOptions{
			ManifestPath: manifestPath(cmd, args),
			Input:        cmd.InOrStdin(),
			Output:       cmd.OutOrStdout(),
			Headless:     headless,
			JSON:         jsonMode,
			Debug:        debug,
			MaxParallel:  parallel,
			Watch:        watch,
			Interval:     interval,
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("headless", false, "Print no banner and no event lines")
	runCmd.Flags().Bool("json", false, "Emit events as NDJSON on stdout")
	runCmd.Flags().BoolP("watch", "w", false, "Poll the manifest and apply version bumps")
	runCmd.Flags().Duration("interval", 100*time.Millisecond, "Quiet period before a saved manifest is reloaded in --watch mode")
	runCmd.Flags().Int("parallel", 1, "Independent subtrees applied concurrently per cycle")
}
