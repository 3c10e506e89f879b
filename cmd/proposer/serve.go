package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/proposer/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proposer server",
	Long: `Start the proposer HTTP server.

The server provides:
  - /health         - Basic server health check
  - /ready          - Readiness check (default LLM provider registered)
  - /api/analyze    - Synchronous document analysis
  - /api/analyses   - Asynchronous runs with progress and cancellation
  - /api/llmcalls   - Recorded LLM call history
  - /swagger        - API documentation

Host and port default to the server section of the config file.
Config changes are picked up without a restart.

Examples:
  proposer serve                    # Start on the configured address
  proposer serve --port 3000        # Start on custom port
  proposer serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger(os.Stdout)
		if err != nil {
			return err
		}

		h, cm, err := loadConfig()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if f := cm.ConfigFile(); f != "" {
			logger.Info("loaded config", "file", f)
		}

		host, port := serveHost, servePort
		if host == "" {
			host = cm.Get().Server.Host
		}
		if port == "" {
			port = cm.Get().Server.Port
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			ConfigManager: cm,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config: 127.0.0.1)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default from config: 8080)")

	rootCmd.AddCommand(serveCmd)
}
