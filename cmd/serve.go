package cmd

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/biscrum/jira-rag/internal/api"
	"github.com/biscrum/jira-rag/internal/config"
	"github.com/biscrum/jira-rag/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API exposing the ingestion and test-case operations:

  POST /ingest/jira
  POST /ingest/json
  GET  /test_connection
  POST /create_test_case
  POST /create_bulk_test_cases
  GET  /get_linked_test_cases/{issue_key}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Addr
		}

		server := api.NewServer(api.Deps{Config: cfg})
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		logging.Info("starting api server", "addr", addr)
		return httpServer.ListenAndServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from SERVER_ADDR, :8000)")
}
