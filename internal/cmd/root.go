package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Dispatcher - terminal workspace server",
	Long: `Dispatcher runs a local server that manages projects, terminal tabs
and split panes over real PTYs, tracks per-command shell status and
persists the workspace across restarts.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
