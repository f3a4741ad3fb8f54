package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/biscrum/jira-rag/internal/config"
	"github.com/biscrum/jira-rag/internal/ingest"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage Dify datasets",
}

var datasetCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new dataset",
	Long: `Create a Dify dataset with the standard indexing and retrieval
configuration. When --name is omitted, a name like Jira_API_Basic_123456
is generated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		advanced, _ := cmd.Flags().GetBool("advanced")

		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if err := config.ValidateDifyConfig(cfg); err != nil {
			return err
		}

		id, err := ingest.CreateDataset(cmd.Context(), ingest.Options{
			APIKey:   cfg.Dify.APIKey,
			BaseURL:  cfg.Dify.BaseURL,
			Advanced: advanced,
			Timeout:  cfg.Dify.Timeout,
		}, name)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(datasetCreateCmd)

	datasetCreateCmd.Flags().String("name", "", "Dataset name")
	datasetCreateCmd.Flags().Bool("advanced", false, "Generate an Advanced-mode dataset name")
}
