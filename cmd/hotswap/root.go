package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hotswap",
	Short: "hotswap is a hot module replacement coordinator",
	Long: `hotswap applies module updates to a running component tree, preserving
component state and containing failures instead of reloading the page.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("manifest", "m", "hotswap.yaml", "Session manifest (modules, components, initial tree)")
	rootCmd.PersistentFlags().Bool("debug", false, "Write debug logs to stderr")
}

// manifestPath resolves the manifest flag, letting a positional argument override the default.
func manifestPath(cmd *cobra.Command, args []string) string {
	path, _ := cmd.Flags().GetString("manifest")
	if !cmd.Flags().Changed("manifest") && len(args) > 0 {
		path = args[0]
	}
	return path
}
