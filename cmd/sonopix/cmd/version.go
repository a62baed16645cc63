package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sonopix/features"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		info := features.GetBuildInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "sonopix %s (mode: %s, built: %s)\n", info["version"], info["mode"], info["buildTime"])
		if verbose && info["features"] != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "features: %s\n", info["features"])
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
