package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dispatch-sh/dispatcher/internal/config"
	"github.com/dispatch-sh/dispatcher/internal/logger"
	"github.com/dispatch-sh/dispatcher/internal/server"
)

var (
	servePort     int
	serveStateDir string
	serveShell    string
	servePool     int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatcher server",
	Long: `Starts the HTTP server that hosts the workspace API, the terminal
WebSocket bridge and the event stream. State is loaded from the state
directory on startup and flushed back on every change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Runtime
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}
		if cmd.Flags().Changed("state-dir") {
			cfg.StateDir = serveStateDir
		}
		if cmd.Flags().Changed("shell") {
			cfg.Shell = serveShell
		}
		if cmd.Flags().Changed("pool") {
			cfg.PoolSize = servePool
		}

		logger.Configure(logger.GetLogLevelFromEnv(cfg.IsDev), cfg.IsDev)

		srv, err := server.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 6776, "port to listen on")
	serveCmd.Flags().StringVar(&serveStateDir, "state-dir", "", "directory for workspace state records")
	serveCmd.Flags().StringVar(&serveShell, "shell", "", "shell binary for new terminals")
	serveCmd.Flags().IntVar(&servePool, "pool", 3, "number of pre-warmed shells")
	rootCmd.AddCommand(serveCmd)
}
