package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set at build time with -ldflags "-X .../internal/cmd.version=..."
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dispatcher version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dispatcher %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
