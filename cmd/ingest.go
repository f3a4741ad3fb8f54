package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/biscrum/jira-rag/internal/config"
	"github.com/biscrum/jira-rag/internal/ingest"
	"github.com/biscrum/jira-rag/internal/jira"
	"github.com/biscrum/jira-rag/internal/logging"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest issues into the Dify knowledge base",
}

var ingestJiraCmd = &cobra.Command{
	Use:   "jira",
	Short: "Ingest issues fetched from a Jira server",
	Long: `Fetch issues from Jira with a JQL query (or a project key) and upload
them into the Dify dataset as documents.

Example:
  jira-rag ingest jira --project QAREF --max-results 100 --advanced`,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		jql, _ := cmd.Flags().GetString("jql")
		maxResults, _ := cmd.Flags().GetInt("max-results")

		switch {
		case jql != "":
		case project != "":
			jql = fmt.Sprintf("project = %s ORDER BY created DESC", project)
		default:
			return fmt.Errorf("either --jql or --project is required")
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if err := config.ValidateJiraConfig(cfg); err != nil {
			return err
		}
		if err := config.ValidateDifyConfig(cfg); err != nil {
			return err
		}

		jiraClient, err := jira.NewClient(cfg.Jira)
		if err != nil {
			return fmt.Errorf("failed to initialize jira client: %v", err)
		}

		svc, err := newIngestService(cmd, cfg)
		if err != nil {
			return err
		}

		logging.Info("fetching issues", "jql", jql, "max_results", maxResults)
		issues, err := jiraClient.SearchIssues(jql, maxResults)
		if err != nil {
			return fmt.Errorf("failed to fetch jira issues: %v", err)
		}
		if len(issues) == 0 {
			logging.Warn("no issues found for the given query", "jql", jql)
			return nil
		}

		report, err := svc.IngestIssues(cmd.Context(), ingest.RecordsFromIssues(issues))
		if err != nil {
			return err
		}

		logging.Info("ingestion finished",
			"dataset_id", svc.DatasetID(),
			"succeeded", report.Succeeded(),
			"failed", report.Failed())
		return nil
	},
}

var ingestJSONCmd = &cobra.Command{
	Use:   "json <file>...",
	Short: "Ingest issues from exported JSON files",
	Long: `Ingest issues from JSON files in the dataset directory. Files named
*_SUMMARY.json are treated as project summaries and fanned out into one
document per field.

Example:
  jira-rag ingest json QAREF.json QAREF_SUMMARY.json --dataset-dir ./dataset`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		datasetDir, _ := cmd.Flags().GetString("dataset-dir")

		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if err := config.ValidateDifyConfig(cfg); err != nil {
			return err
		}
		if datasetDir == "" {
			datasetDir = cfg.Server.DatasetDir
		}

		svc, err := newIngestService(cmd, cfg)
		if err != nil {
			return err
		}

		failedFiles := 0
		for _, name := range args {
			path := filepath.Join(datasetDir, name)
			report, err := svc.IngestJSONFile(cmd.Context(), path)
			if err != nil {
				logging.Error("failed to ingest file", "path", path, "error", err)
				failedFiles++
				continue
			}
			logging.Info("ingested file",
				"path", path,
				"succeeded", report.Succeeded(),
				"failed", report.Failed())
		}
		if failedFiles > 0 {
			return fmt.Errorf("%d of %d files failed", failedFiles, len(args))
		}
		return nil
	},
}

// newIngestService builds the ingestion facade from flags and config.
// Flags override environment-backed configuration.
func newIngestService(cmd *cobra.Command, cfg *config.Config) (*ingest.Service, error) {
	advanced, _ := cmd.Flags().GetBool("advanced")
	datasetID, _ := cmd.Flags().GetString("dataset-id")
	if datasetID == "" {
		datasetID = cfg.Dify.DatasetID
	}
	return ingest.New(cmd.Context(), ingest.Options{
		APIKey:    cfg.Dify.APIKey,
		BaseURL:   cfg.Dify.BaseURL,
		DatasetID: datasetID,
		Advanced:  advanced,
		Timeout:   cfg.Dify.Timeout,
	})
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestJiraCmd)
	ingestCmd.AddCommand(ingestJSONCmd)

	ingestCmd.PersistentFlags().Bool("advanced", false, "Enable advanced ingestion (aliases and example queries)")
	ingestCmd.PersistentFlags().String("dataset-id", "", "Target dataset id (created when omitted)")

	ingestJiraCmd.Flags().StringP("project", "p", "", "Jira project key to ingest")
	ingestJiraCmd.Flags().StringP("jql", "q", "", "JQL query selecting the issues to ingest")
	ingestJiraCmd.Flags().IntP("max-results", "m", 100, "Maximum number of issues to fetch")

	ingestJSONCmd.Flags().StringP("dataset-dir", "d", "", "Directory containing the JSON files")
}
