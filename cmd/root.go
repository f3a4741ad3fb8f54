// Package cmd provides the command-line interface for the jira-rag tool.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/biscrum/jira-rag/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "jira-rag",
	Short: "Ingest Jira issues into a Dify knowledge base",
	Long: `jira-rag ingests Jira issues into a Dify knowledge base (dataset) as
text documents enriched with issue-key metadata, so a RAG chat flow can
answer questions about specific issues. It can ingest straight from a
Jira server, from exported JSON files, and it can run an HTTP API
exposing the same operations.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A local .env is optional; environment variables win either way.
		if err := godotenv.Load(); err == nil {
			logging.Debug("loaded .env file")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
