package cli

import (
	"github.com/spf13/cobra"

	"github.com/adpilot/adpilot/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the adpilot HTTP server.

The server provides:
  - POST /api/optimize to run an optimization cycle
  - /api/abtests to create, list, and evaluate A/B tests
  - /api/runs for the optimization audit log
  - /health for monitoring

Requests are authenticated with the X-API-Key header when server.api_key
is configured.

Example:
  adpilot serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default from config, then 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		port := servePort
		if port == 0 {
			port = a.cfg.Server.Port
		}

		srv := server.New(a.store, a.engine(), a.evaluator(), port, a.cfg.Server.APIKey, a.log)
		return srv.Start()
	})
}
