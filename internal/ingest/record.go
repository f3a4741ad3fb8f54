// Package ingest implements the issue-to-document transformation and
// ingestion pipeline: normalizing raw issue records, formatting them
// into documents, planning chunk parameters, and driving the multi-step
// Dify upload protocol.
package ingest

import (
	"encoding/json"
	"strconv"

	"github.com/biscrum/jira-rag/pkg/models"
)

// Record is a raw issue record as parsed from JSON or adapted from the
// Jira client. Two shapes are accepted: a flat object with fields on the
// top level, and a nested object with Jira field names under a "fields"
// sub-mapping. Shape detection lives entirely in Resolve; everything
// downstream works with resolved strings.
type Record map[string]any

// Candidate path lists per logical field. Flat-shape paths come first,
// then the nested "fields" paths, then bare-flat fallbacks for records
// that carry plain strings instead of name/key sub-objects.
var (
	keyPaths         = []string{"key", "fields.key"}
	projectPaths     = []string{"project.key", "fields.project.key", "project"}
	issueTypePaths   = []string{"issuetype.name", "fields.issuetype.name", "issue_type"}
	statusPaths      = []string{"status.name", "fields.status.name", "status"}
	assigneePaths    = []string{"assignee.name", "fields.assignee.name", "assignee"}
	createdPaths     = []string{"created", "fields.created"}
	updatedPaths     = []string{"updated", "fields.updated"}
	summaryPaths     = []string{"summary", "fields.summary"}
	descriptionPaths = []string{"description", "fields.description"}
)

// Resolve tries each dotted path in order and returns the first value
// that resolves to a non-empty scalar, stringified. Maps and slices do
// not count as resolved values. Missing fields are not errors at this
// layer; the fallback default is returned instead.
func (r Record) Resolve(paths []string, fallback string) string {
	for _, path := range paths {
		if value, ok := r.lookup(path); ok {
			return value
		}
	}
	return fallback
}

// Has reports whether any of the candidate paths resolves to a value.
func (r Record) Has(paths []string) bool {
	for _, path := range paths {
		if _, ok := r.lookup(path); ok {
			return true
		}
	}
	return false
}

// Key resolves the issue key, falling back to "unknown" for logging.
func (r Record) Key() string {
	return r.Resolve(keyPaths, "unknown")
}

func (r Record) lookup(path string) (string, bool) {
	var current any = map[string]any(r)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		segment := path[start:i]
		start = i + 1
		node, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = node[segment]
		if !ok {
			return "", false
		}
	}
	return scalarString(current)
}

func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// RecordFromIssue adapts a typed Jira client result into a flat-shape
// Record at the ingestion boundary.
func RecordFromIssue(issue models.JiraIssue) Record {
	rec := Record{
		"key":         issue.Key,
		"summary":     issue.Summary,
		"description": issue.Description,
		"created":     issue.Created,
		"updated":     issue.Updated,
	}
	if issue.Status != "" {
		rec["status"] = map[string]any{"name": issue.Status}
	}
	if issue.Assignee != "" {
		rec["assignee"] = map[string]any{"name": issue.Assignee}
	}
	if issue.Project != "" {
		rec["project"] = map[string]any{"key": issue.Project}
	}
	if issue.IssueType != "" {
		rec["issuetype"] = map[string]any{"name": issue.IssueType}
	}
	return rec
}

// RecordsFromIssues adapts a slice of typed issues.
func RecordsFromIssues(issues []models.JiraIssue) []Record {
	records := make([]Record, 0, len(issues))
	for _, issue := range issues {
		records = append(records, RecordFromIssue(issue))
	}
	return records
}
