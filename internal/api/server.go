// Package api exposes the ingestion and test-case operations over HTTP
// for external callers such as a Dify chat-flow orchestrator.
package api

import (
	"context"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/biscrum/jira-rag/internal/config"
	"github.com/biscrum/jira-rag/internal/dify"
	"github.com/biscrum/jira-rag/internal/ingest"
	"github.com/biscrum/jira-rag/internal/jira"
	"github.com/biscrum/jira-rag/pkg/models"
)

// TicketClient is the slice of the Jira client the handlers use.
type TicketClient interface {
	SearchIssues(jql string, maxResults int) ([]models.JiraIssue, error)
	CreateTestCase(projectKey string, tc models.TestCase, opts jira.CreateOptions) (models.JiraIssue, error)
	LinkIssues(inwardKey, outwardKey, linkType, comment string) error
	BulkCreateTestCases(projectKey string, cases []models.TestCase, parentKey, linkType string, opts jira.CreateOptions) []models.CreatedTestCase
	GetLinkedIssues(key, linkType string) ([]models.LinkedIssue, error)
	Self() (string, error)
	BrowseURL(key string) string
}

// Ingestor is the slice of the ingestion service the handlers use. A
// fresh instance is constructed per request so concurrent requests never
// share dataset state.
type Ingestor interface {
	IngestIssues(ctx context.Context, records []ingest.Record) (*ingest.Report, error)
	IngestJSONFile(ctx context.Context, path string) (*ingest.Report, error)
	DatasetID() string
}

// Deps wires the server to its collaborators. Zero-value fields are
// filled in from the configuration.
type Deps struct {
	Config          *config.Config
	NewTicketClient func() (TicketClient, error)
	NewIngestor     func(ctx context.Context, advanced bool) (Ingestor, error)
	ProbeDify       func(ctx context.Context) error
}

// Server routes HTTP requests to the ingestion facade and ticket client.
type Server struct {
	router          chi.Router
	cfg             *config.Config
	newTicketClient func() (TicketClient, error)
	newIngestor     func(ctx context.Context, advanced bool) (Ingestor, error)
	probeDify       func(ctx context.Context) error
}

// NewServer builds the API server and its routes.
func NewServer(deps Deps) *Server {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	s := &Server{
		cfg:             cfg,
		newTicketClient: deps.NewTicketClient,
		newIngestor:     deps.NewIngestor,
		probeDify:       deps.ProbeDify,
	}
	if s.newTicketClient == nil {
		s.newTicketClient = func() (TicketClient, error) {
			return jira.NewClient(cfg.Jira)
		}
	}
	if s.newIngestor == nil {
		s.newIngestor = func(ctx context.Context, advanced bool) (Ingestor, error) {
			return ingest.New(ctx, ingest.Options{
				APIKey:    cfg.Dify.APIKey,
				BaseURL:   cfg.Dify.BaseURL,
				DatasetID: cfg.Dify.DatasetID,
				Advanced:  advanced,
				Timeout:   cfg.Dify.Timeout,
			})
		}
	}
	if s.probeDify == nil {
		s.probeDify = func(ctx context.Context) error {
			client := dify.NewClient(dify.Config{
				APIKey:  cfg.Dify.APIKey,
				BaseURL: cfg.Dify.BaseURL,
				Timeout: cfg.Dify.Timeout,
			})
			_, err := client.ListDatasets(ctx)
			return err
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/ingest/jira", s.handleIngestJira)
	r.Post("/ingest/json", s.handleIngestJSON)
	r.Get("/test_connection", s.handleTestConnection)
	r.Post("/create_test_case", s.handleCreateTestCase)
	r.Post("/create_bulk_test_cases", s.handleCreateBulkTestCases)
	r.Get("/get_linked_test_cases/{issue_key}", s.handleGetLinkedTestCases)
	s.router = r
	return s
}

// Router returns the HTTP handler for mounting or serving.
func (s *Server) Router() http.Handler {
	return s.router
}
