package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/biscrum/jira-rag/internal/ingest"
	"github.com/biscrum/jira-rag/internal/jira"
	"github.com/biscrum/jira-rag/internal/logging"
	"github.com/biscrum/jira-rag/pkg/models"
)

type ingestJiraRequest struct {
	Project    string `json:"project"`
	JQL        string `json:"jql"`
	MaxResults int    `json:"max_results"`
}

type ingestJiraResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Ingested int    `json:"ingested,omitempty"`
	Failed   int    `json:"failed,omitempty"`
}

type ingestJSONRequest struct {
	FileNames  []string `json:"file_names"`
	DatasetDir string   `json:"dataset_dir"`
}

type fileResult struct {
	File      string `json:"file"`
	Documents int    `json:"documents"`
	Failed    int    `json:"failed"`
}

type fileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type ingestJSONResponse struct {
	Success bool         `json:"success"`
	Results []fileResult `json:"results"`
	Errors  []fileError  `json:"errors"`
}

type createTestCaseRequest struct {
	ParentKey  string `json:"parent_key"`
	ProjectKey string `json:"project_key"`
}

type bulkTestCasesRequest struct {
	MainIssueKey string            `json:"main_issue_key"`
	TestCases    []models.TestCase `json:"test_cases"`
	LinkType     string            `json:"link_type"`
	Labels       []string          `json:"labels"`
	Component    string            `json:"component"`
	Reporter     string            `json:"reporter"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleIngestJira(w http.ResponseWriter, r *http.Request) {
	var req ingestJiraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	var jql string
	switch {
	case req.JQL != "":
		jql = req.JQL
	case req.Project != "":
		jql = fmt.Sprintf("project = %s ORDER BY created DESC", req.Project)
	default:
		writeError(w, http.StatusBadRequest, "You must provide either a 'jql' or 'project' parameter.")
		return
	}

	advanced := queryFlag(r, "advanced_ingestion")

	ticket, err := s.newTicketClient()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	svc, err := s.newIngestor(r.Context(), advanced)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	issues, err := ticket.SearchIssues(jql, req.MaxResults)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(issues) == 0 {
		writeJSON(w, http.StatusOK, ingestJiraResponse{
			Success: false,
			Message: "No issues found for the given query.",
		})
		return
	}

	report, err := svc.IngestIssues(r.Context(), ingest.RecordsFromIssues(issues))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ingestJiraResponse{
		Success:  true,
		Message:  fmt.Sprintf("Ingested %d issues from Jira.", report.Succeeded()),
		Ingested: report.Succeeded(),
		Failed:   report.Failed(),
	})
}

func (s *Server) handleIngestJSON(w http.ResponseWriter, r *http.Request) {
	var req ingestJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.FileNames) == 0 {
		writeError(w, http.StatusBadRequest, "file_names is required")
		return
	}
	datasetDir := req.DatasetDir
	if datasetDir == "" {
		datasetDir = s.cfg.Server.DatasetDir
	}

	advanced := queryFlag(r, "advanced_ingestion")
	svc, err := s.newIngestor(r.Context(), advanced)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ingestJSONResponse{Results: []fileResult{}, Errors: []fileError{}}
	for _, name := range req.FileNames {
		path := filepath.Join(datasetDir, name)
		if _, err := os.Stat(path); err != nil {
			logging.Error("input file not found", "path", path)
			resp.Errors = append(resp.Errors, fileError{File: name, Error: fmt.Sprintf("File not found: %s", path)})
			continue
		}
		report, err := svc.IngestJSONFile(r.Context(), path)
		if err != nil {
			logging.Error("json ingestion failed", "path", path, "error", err)
			resp.Errors = append(resp.Errors, fileError{File: name, Error: err.Error()})
			continue
		}
		resp.Results = append(resp.Results, fileResult{
			File:      name,
			Documents: report.Succeeded(),
			Failed:    report.Failed(),
		})
	}
	resp.Success = len(resp.Errors) == 0
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	result := struct {
		Jira     bool              `json:"jira"`
		Dify     bool              `json:"dify"`
		JiraUser string            `json:"jira_user,omitempty"`
		Errors   map[string]string `json:"errors"`
	}{Errors: map[string]string{}}

	if ticket, err := s.newTicketClient(); err != nil {
		result.Errors["jira"] = err.Error()
	} else if user, err := ticket.Self(); err != nil {
		result.Errors["jira"] = err.Error()
	} else {
		result.Jira = true
		result.JiraUser = user
	}

	if err := s.probeDify(r.Context()); err != nil {
		result.Errors["dify"] = err.Error()
	} else {
		result.Dify = true
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateTestCase(w http.ResponseWriter, r *http.Request) {
	var req createTestCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.ParentKey == "" || req.ProjectKey == "" {
		writeError(w, http.StatusBadRequest, "parent_key and project_key are required")
		return
	}

	ticket, err := s.newTicketClient()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	issue, err := ticket.CreateTestCase(req.ProjectKey, models.TestCase{}, jira.CreateOptions{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := ticket.LinkIssues(req.ParentKey, issue.Key, "depends on", ""); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logging.Info("linked test case", "key", issue.Key, "parent", req.ParentKey)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"test_case_key": issue.Key,
		"parent_key":    req.ParentKey,
		"issue_url":     ticket.BrowseURL(issue.Key),
		"summary":       issue.Summary,
		"status":        issue.Status,
		"description":   issue.Description,
		"message":       fmt.Sprintf("Test case %s created and linked to %s", issue.Key, req.ParentKey),
	})
}

func (s *Server) handleCreateBulkTestCases(w http.ResponseWriter, r *http.Request) {
	var req bulkTestCasesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.MainIssueKey == "" {
		writeError(w, http.StatusBadRequest, "main_issue_key is required")
		return
	}
	if len(req.TestCases) == 0 {
		writeError(w, http.StatusBadRequest, "test_cases is required")
		return
	}

	projectKey := req.MainIssueKey
	if idx := strings.Index(projectKey, "-"); idx > 0 {
		projectKey = projectKey[:idx]
	}

	ticket, err := s.newTicketClient()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := ticket.BulkCreateTestCases(projectKey, req.TestCases, req.MainIssueKey, req.LinkType, jira.CreateOptions{
		Labels:    req.Labels,
		Component: req.Component,
		Reporter:  req.Reporter,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"created_cases": results,
		"message":       fmt.Sprintf("Processed %d test cases for %s", len(results), req.MainIssueKey),
	})
}

func (s *Server) handleGetLinkedTestCases(w http.ResponseWriter, r *http.Request) {
	issueKey := chi.URLParam(r, "issue_key")
	linkType := r.URL.Query().Get("link_type")
	if linkType == "" {
		linkType = "Tests"
	}

	ticket, err := s.newTicketClient()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	linked, err := ticket.GetLinkedIssues(issueKey, linkType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if linked == nil {
		linked = []models.LinkedIssue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"linked_test_cases": linked,
	})
}

func queryFlag(r *http.Request, name string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		logging.Error("request failed", "status", status, "error", message)
	}
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}
