// Package jira wraps the Jira REST API behind the small surface the
// ingestion pipeline and the web API need.
package jira

import (
	"fmt"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/biscrum/jira-rag/internal/config"
	"github.com/biscrum/jira-rag/internal/logging"
	"github.com/biscrum/jira-rag/pkg/models"
)

// Client handles interactions with the Jira API.
type Client struct {
	client  *jira.Client
	baseURL string
}

// CreateOptions carries the optional attributes for created test cases.
type CreateOptions struct {
	IssueType string
	Labels    []string
	Component string
	Reporter  string
}

// NewClient creates a Jira client from explicit configuration.
func NewClient(cfg config.JiraConfig) (*Client, error) {
	var missing []string
	if cfg.BaseURL == "" {
		missing = append(missing, "JIRA_SERVER_URL")
	}
	if cfg.Email == "" {
		missing = append(missing, "JIRA_EMAIL")
	}
	if cfg.Token == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Jira credentials: %v", missing)
	}

	tp := jira.BasicAuthTransport{
		Username: cfg.Email,
		Password: cfg.Token,
	}
	client, err := jira.NewClient(tp.Client(), cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %v", err)
	}

	logging.Debug("jira client initialized",
		"base_url", cfg.BaseURL,
		"email", cfg.Email,
		"token", logging.MaskSensitive(cfg.Token))

	return &Client{client: client, baseURL: strings.TrimRight(cfg.BaseURL, "/")}, nil
}

// BaseURL returns the configured Jira server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BrowseURL returns the web URL for an issue key.
func (c *Client) BrowseURL(key string) string {
	return fmt.Sprintf("%s/browse/%s", c.baseURL, key)
}

// SearchIssues runs a JQL query and returns matching issues.
func (c *Client) SearchIssues(jql string, maxResults int) ([]models.JiraIssue, error) {
	if maxResults <= 0 {
		maxResults = 100
	}
	issues, resp, err := c.client.Issue.Search(jql, &jira.SearchOptions{MaxResults: maxResults})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to search jira issues: %v (status: %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to search jira issues: %v", err)
	}

	results := make([]models.JiraIssue, 0, len(issues))
	for i := range issues {
		results = append(results, fromJiraIssue(&issues[i]))
	}
	return results, nil
}

// GetIssue fetches a single issue by key.
func (c *Client) GetIssue(key string) (models.JiraIssue, error) {
	issue, resp, err := c.client.Issue.Get(key, nil)
	if err != nil {
		if resp != nil {
			return models.JiraIssue{}, fmt.Errorf("failed to get issue %s: %v (status: %d)", key, err, resp.StatusCode)
		}
		return models.JiraIssue{}, fmt.Errorf("failed to get issue %s: %v", key, err)
	}
	return fromJiraIssue(issue), nil
}

// CreateTestCase creates a test-case issue in the given project. Empty
// summary/description get generated defaults.
func (c *Client) CreateTestCase(projectKey string, tc models.TestCase, opts CreateOptions) (models.JiraIssue, error) {
	issueType := opts.IssueType
	if issueType == "" {
		issueType = "Task"
	}
	summary := tc.Summary
	if summary == "" {
		summary = fmt.Sprintf("Test Case for %s", projectKey)
	}
	description := tc.Description
	if description == "" {
		description = "Test case created via Dify integration."
	}

	fields := &jira.IssueFields{
		Project:     jira.Project{Key: projectKey},
		Summary:     summary,
		Description: description,
		Type:        jira.IssueType{Name: issueType},
	}
	if len(opts.Labels) > 0 {
		fields.Labels = opts.Labels
	}
	if opts.Component != "" {
		fields.Components = []*jira.Component{{Name: opts.Component}}
	}
	if opts.Reporter != "" {
		fields.Reporter = &jira.User{Name: opts.Reporter}
	}

	created, resp, err := c.client.Issue.Create(&jira.Issue{Fields: fields})
	if err != nil {
		if resp != nil {
			return models.JiraIssue{}, fmt.Errorf("failed to create test case: %v (status: %d)", err, resp.StatusCode)
		}
		return models.JiraIssue{}, fmt.Errorf("failed to create test case: %v", err)
	}

	logging.Info("created test case", "key", created.Key, "project", projectKey)
	return models.JiraIssue{
		Key:         created.Key,
		Summary:     summary,
		Description: description,
		Status:      "To Do",
		Project:     projectKey,
		IssueType:   issueType,
	}, nil
}

// LinkIssues links two issues with the given link type. The comment is
// optional.
func (c *Client) LinkIssues(inwardKey, outwardKey, linkType, comment string) error {
	link := &jira.IssueLink{
		Type:         jira.IssueLinkType{Name: linkType},
		InwardIssue:  &jira.Issue{Key: inwardKey},
		OutwardIssue: &jira.Issue{Key: outwardKey},
	}
	if comment != "" {
		link.Comment = &jira.Comment{Body: comment}
	}
	resp, err := c.client.Issue.AddLink(link)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to link %s to %s: %v (status: %d)", inwardKey, outwardKey, err, resp.StatusCode)
		}
		return fmt.Errorf("failed to link %s to %s: %v", inwardKey, outwardKey, err)
	}
	return nil
}

// BulkCreateTestCases creates and links test cases one by one,
// continuing past individual failures.
func (c *Client) BulkCreateTestCases(projectKey string, cases []models.TestCase, parentKey, linkType string, opts CreateOptions) []models.CreatedTestCase {
	if linkType == "" {
		linkType = "Tests"
	}
	results := make([]models.CreatedTestCase, 0, len(cases))
	for _, tc := range cases {
		issue, err := c.CreateTestCase(projectKey, tc, opts)
		if err != nil {
			logging.Error("failed to create test case", "summary", tc.Summary, "error", err)
			results = append(results, models.CreatedTestCase{Summary: tc.Summary, Error: err.Error()})
			continue
		}
		result := models.CreatedTestCase{
			Key:     issue.Key,
			Summary: issue.Summary,
			URL:     c.BrowseURL(issue.Key),
		}
		if err := c.LinkIssues(parentKey, issue.Key, linkType, ""); err != nil {
			logging.Error("failed to link test case", "key", issue.Key, "parent", parentKey, "error", err)
			result.Error = err.Error()
		} else {
			result.Linked = true
		}
		results = append(results, result)
	}
	return results
}

// GetLinkedIssues returns issues linked to the given issue, filtered by
// link type when one is provided.
func (c *Client) GetLinkedIssues(key, linkType string) ([]models.LinkedIssue, error) {
	issue, resp, err := c.client.Issue.Get(key, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to get issue %s: %v (status: %d)", key, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to get issue %s: %v", key, err)
	}

	var linked []models.LinkedIssue
	for _, link := range issue.Fields.IssueLinks {
		if linkType != "" && !strings.EqualFold(link.Type.Name, linkType) {
			continue
		}
		target := link.OutwardIssue
		if target == nil {
			target = link.InwardIssue
		}
		if target == nil {
			continue
		}
		entry := models.LinkedIssue{Key: target.Key, LinkType: link.Type.Name}
		if target.Fields != nil {
			entry.Summary = target.Fields.Summary
			if target.Fields.Status != nil {
				entry.Status = target.Fields.Status.Name
			}
		}
		linked = append(linked, entry)
	}
	return linked, nil
}

// Self fetches the authenticated user as a connectivity probe and
// returns the display name.
func (c *Client) Self() (string, error) {
	user, resp, err := c.client.User.GetSelf()
	if err != nil {
		if resp != nil {
			return "", fmt.Errorf("failed to verify jira connection: %v (status: %d)", err, resp.StatusCode)
		}
		return "", fmt.Errorf("failed to verify jira connection: %v", err)
	}
	return user.DisplayName, nil
}

func fromJiraIssue(issue *jira.Issue) models.JiraIssue {
	result := models.JiraIssue{Key: issue.Key}
	if issue.Fields == nil {
		return result
	}
	result.Summary = issue.Fields.Summary
	result.Description = issue.Fields.Description
	if issue.Fields.Status != nil {
		result.Status = issue.Fields.Status.Name
	}
	if issue.Fields.Assignee != nil {
		result.Assignee = issue.Fields.Assignee.DisplayName
	}
	if created := time.Time(issue.Fields.Created); !created.IsZero() {
		result.Created = created.Format(time.RFC3339)
	}
	if updated := time.Time(issue.Fields.Updated); !updated.IsZero() {
		result.Updated = updated.Format(time.RFC3339)
	}
	result.Project = issue.Fields.Project.Key
	result.IssueType = issue.Fields.Type.Name
	return result
}
