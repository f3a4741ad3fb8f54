// Package models defines data structures shared across the application.
package models

// JiraIssue represents a Jira issue with the fields the ingestion
// pipeline cares about. All values are kept as strings because they are
// rendered straight into document text.
type JiraIssue struct {
	// Key is the full Jira issue identifier (e.g., "REST-271")
	Key string

	// Summary is the issue's one-line summary
	Summary string

	// Description is the full body text of the issue
	Description string

	// Status is the current workflow status name (e.g., "In Progress")
	Status string

	// Assignee is the display name of the assignee, empty when unassigned
	Assignee string

	// Created is the creation timestamp as reported by Jira
	Created string

	// Updated is the last-update timestamp as reported by Jira
	Updated string

	// Project is the key of the project the issue belongs to
	Project string

	// IssueType is the Jira issue type name (e.g., "Bug", "Story")
	IssueType string
}

// TestCase describes a test case to be created in Jira, typically
// produced by an LLM chat flow.
type TestCase struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

// CreatedTestCase reports the result of a single test-case creation.
type CreatedTestCase struct {
	Key     string `json:"key,omitempty"`
	Summary string `json:"summary,omitempty"`
	URL     string `json:"url,omitempty"`
	Linked  bool   `json:"linked"`
	Error   string `json:"error,omitempty"`
}

// LinkedIssue is an issue reachable from another issue via an issue link.
type LinkedIssue struct {
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	Status   string `json:"status"`
	LinkType string `json:"link_type"`
}
