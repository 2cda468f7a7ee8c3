package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	redisadapter "github.com/aretw0/hotswap/pkg/adapters/redis"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish [packet.json]",
	Short: "Publish an update packet to a Redis-backed dev server",
	Long: `Reads one JSON encoded update packet from the file argument (or stdin) and publishes
it on the Redis updates channel consumed by 'hotswap serve --redis'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("redis")
		prefix, _ := cmd.Flags().GetString("redis-prefix")

		in := cmd.InOrStdin()
		if len(args) > 0 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return err
		}
		var packet domain.UpdatePacket
		if err := json.Unmarshal(data, &packet); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedUpdate, err)
		}

		opts, err := redis.ParseURL(url)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		if err := redisadapter.Publish(cmd.Context(), client, prefix, packet); err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %d modules\n", len(packet.Modules))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String("redis", "redis://localhost:6379/0", "Redis URL")
	publishCmd.Flags().String("redis-prefix", "hotswap:", "Redis key and channel prefix")
}
