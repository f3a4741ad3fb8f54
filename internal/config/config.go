// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration parameters for the application.
type Config struct {
	Jira   JiraConfig
	Dify   DifyConfig
	Server ServerConfig
}

// JiraConfig holds Jira specific configuration.
type JiraConfig struct {
	BaseURL string
	Email   string
	Token   string
}

// DifyConfig holds Dify knowledge-base specific configuration.
type DifyConfig struct {
	APIKey    string
	BaseURL   string
	DatasetID string
	Timeout   time.Duration
}

// ServerConfig holds the HTTP API server configuration.
type ServerConfig struct {
	Addr       string
	DatasetDir string
}

// LoadConfig initializes and loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Map specific environment variables
	v.BindEnv("jira.base_url", "JIRA_SERVER_URL")
	v.BindEnv("jira.email", "JIRA_EMAIL")
	v.BindEnv("jira.token", "JIRA_API_TOKEN")
	v.BindEnv("dify.api_key", "DIFY_DATASET_API_KEY")
	v.BindEnv("dify.base_url", "DIFY_BASE_URL")
	v.BindEnv("dify.dataset_id", "DIFY_DATASET_ID")
	v.BindEnv("dify.timeout", "DIFY_TIMEOUT")
	v.BindEnv("server.addr", "SERVER_ADDR")
	v.BindEnv("server.dataset_dir", "DATASET_DIR")

	v.SetDefault("dify.base_url", "http://localhost/v1")
	v.SetDefault("dify.timeout", "30s")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.dataset_dir", "dataset")

	config := &Config{
		Jira: JiraConfig{
			BaseURL: v.GetString("jira.base_url"),
			Email:   v.GetString("jira.email"),
			Token:   v.GetString("jira.token"),
		},
		Dify: DifyConfig{
			APIKey:    v.GetString("dify.api_key"),
			BaseURL:   v.GetString("dify.base_url"),
			DatasetID: v.GetString("dify.dataset_id"),
			Timeout:   v.GetDuration("dify.timeout"),
		},
		Server: ServerConfig{
			Addr:       v.GetString("server.addr"),
			DatasetDir: v.GetString("server.dataset_dir"),
		},
	}

	if config.Dify.Timeout <= 0 {
		config.Dify.Timeout = 30 * time.Second
	}

	return config, nil
}

// ValidateJiraConfig validates Jira-specific configuration.
func ValidateJiraConfig(config *Config) error {
	var missingVars []string

	if config.Jira.BaseURL == "" {
		missingVars = append(missingVars, "JIRA_SERVER_URL")
	}
	if config.Jira.Email == "" {
		missingVars = append(missingVars, "JIRA_EMAIL")
	}
	if config.Jira.Token == "" {
		missingVars = append(missingVars, "JIRA_API_TOKEN")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// ValidateDifyConfig validates Dify-specific configuration. Only the API
// key is strictly required; the base URL has a default and the dataset id
// can be created on demand.
func ValidateDifyConfig(config *Config) error {
	if config.Dify.APIKey == "" {
		return fmt.Errorf("missing required environment variables: [DIFY_DATASET_API_KEY]")
	}
	return nil
}
