package main

import (
	"fmt"

	"github.com/aretw0/hotswap"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of hotswap",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hotswap version %s\n", hotswap.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
