package main

import (
	"github.com/aretw0/hotswap/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [manifest]",
	Short: "Start the HMR dev server",
	Long: `Starts a coordinator session behind an HTTP API: update packets are POSTed to
/updates and lifecycle events stream over SSE on /events. With --redis, events are
also published to Redis and packets are consumed from its updates channel.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		addr, _ := cmd.Flags().GetString("addr")
		redisURL, _ := cmd.Flags().GetString("redis")
		prefix, _ := cmd.Flags().GetString("redis-prefix")
		exclusive, _ := cmd.Flags().GetBool("exclusive")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		quiet, _ := cmd.Flags().GetBool("quiet")
		parallel, _ := cmd.Flags().GetInt("parallel")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		return cli.Serve(ctx, cli.ServeOptions{
			ManifestPath: manifestPath(cmd, args),
			Addr:         addr,
			RedisURL:     redisURL,
			RedisPrefix:  prefix,
			Exclusive:    exclusive,
			MaxParallel:  parallel,
			Debug:        debug,
			JSONLogs:     jsonLogs,
			Quiet:        quiet,
			Output:       cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", "", "Listen address (default from manifest, else :8080)")
	serveCmd.Flags().String("redis", "", "Redis URL for event publishing and packet consumption")
	serveCmd.Flags().String("redis-prefix", "", "Redis key and channel prefix (default hotswap:)")
	serveCmd.Flags().Bool("exclusive", false, "Hold a Redis lock so one server consumes the session's packets")
	serveCmd.Flags().Bool("json-logs", false, "Write debug logs as JSON")
	serveCmd.Flags().BoolP("quiet", "q", false, "Do not print events to stdout")
	serveCmd.Flags().Int("parallel", 0, "Independent subtrees applied concurrently per cycle")
}
