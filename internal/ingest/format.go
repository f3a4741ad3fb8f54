package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/biscrum/jira-rag/internal/dify"
)

// Mode selects the formatting style for issue documents.
type Mode int

const (
	// ModeBasic renders the plain issue template with economy indexing.
	ModeBasic Mode = iota
	// ModeAdvanced adds alias and example-query lines for better
	// retrieval recall and uses high-quality indexing.
	ModeAdvanced
)

func (m Mode) String() string {
	if m == ModeAdvanced {
		return "Advanced"
	}
	return "Basic"
}

// MalformedIssueError reports an issue record missing fields required
// for formatting. The issue is skipped; nothing is uploaded for it.
type MalformedIssueError struct {
	Key     string
	Missing []string
}

func (e *MalformedIssueError) Error() string {
	return fmt.Sprintf("malformed issue %q: missing required fields %v", e.Key, e.Missing)
}

// Trailing digit run of an issue key, e.g. REST-271 -> 271. Keys like
// ABC-12-2 yield only the final run ("2"); keys without one yield none.
var issueNumberPattern = regexp.MustCompile(`(\d+)$`)

// Formatter renders normalized issue records into upload-ready
// documents.
type Formatter struct {
	mode    Mode
	planner *Planner
}

// NewFormatter returns a formatter for the given mode. Basic mode plans
// chunk parameters per document; advanced mode uses a fixed custom rule.
func NewFormatter(mode Mode) *Formatter {
	ceiling := BasicMaxTokens
	if mode == ModeAdvanced {
		ceiling = AdvancedMaxTokens
	}
	return &Formatter{mode: mode, planner: NewPlanner(ceiling)}
}

// Format validates the record and renders it into a document. It returns
// a MalformedIssueError when a required field is absent under both
// record shapes.
func (f *Formatter) Format(record Record) (*dify.Document, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}

	key := record.Resolve(keyPaths, "Unknown")
	project := record.Resolve(projectPaths, "Unknown Project")
	issueType := record.Resolve(issueTypePaths, "Unknown Type")
	status := record.Resolve(statusPaths, "Unknown Status")
	assignee := record.Resolve(assigneePaths, "Unassigned")
	created := record.Resolve(createdPaths, "Unknown")
	updated := record.Resolve(updatedPaths, "Unknown")
	summary := record.Resolve(summaryPaths, "No summary provided")
	description := record.Resolve(descriptionPaths, "No description provided")

	body := fmt.Sprintf(
		"Jira Issue: %s\nProject: %s\nType: %s\nStatus: %s\nAssignee: %s\nCreated: %s\nUpdated: %s\n\nSummary: %s\n\nDescription:\n%s",
		key, project, issueType, status, assignee, created, updated, summary, description,
	)

	doc := &dify.Document{
		Name: fmt.Sprintf("Jira Issue %s", key),
	}

	if f.mode == ModeAdvanced {
		var parts []string
		parts = append(parts, aliasesLine(key))
		parts = append(parts, exampleQueriesBlock(key))
		// Restate the summary first for retrieval salience.
		parts = append(parts, fmt.Sprintf("Summary: %s\n\n", summary))
		parts = append(parts, body)
		doc.Text = strings.Join(parts, "")
		doc.IndexingTechnique = "high_quality"
		doc.ProcessRule = advancedProcessRule()
	} else {
		doc.Text = body
		doc.IndexingTechnique = "economy"
		maxTokens, overlap := f.planner.Plan(doc.Text)
		doc.ProcessRule = dify.ProcessRule{
			Mode: "automatic",
			Segmentation: &dify.Segmentation{
				Separator:    "\n",
				MaxTokens:    maxTokens,
				ChunkOverlap: overlap,
			},
		}
	}

	return doc, nil
}

func validateRecord(record Record) error {
	required := []struct {
		name  string
		paths []string
	}{
		{"key", keyPaths},
		{"summary", summaryPaths},
		{"description", descriptionPaths},
		{"status", statusPaths},
	}
	var missing []string
	for _, field := range required {
		if !record.Has(field.paths) {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return &MalformedIssueError{Key: record.Key(), Missing: missing}
	}
	return nil
}

// IssueNumber extracts the trailing digit run from an issue key, or ""
// when the key has none.
func IssueNumber(key string) string {
	match := issueNumberPattern.FindStringSubmatch(key)
	if match == nil {
		return ""
	}
	return match[1]
}

func aliasesLine(key string) string {
	aliases := []string{key, fmt.Sprintf("Issue %s", key), fmt.Sprintf("Jira %s", key)}
	if number := IssueNumber(key); number != "" {
		aliases = append(aliases,
			number,
			fmt.Sprintf("Issue %s", number),
			fmt.Sprintf("Jira %s", number),
		)
	}
	return "Aliases: " + strings.Join(aliases, ", ") + "\n"
}

func exampleQueriesBlock(key string) string {
	queries := []string{
		fmt.Sprintf("What is %s about?", key),
		fmt.Sprintf("How to test %s?", key),
		fmt.Sprintf("What does %s fix?", key),
		fmt.Sprintf("How was %s resolved?", key),
		fmt.Sprintf("Who reported %s?", key),
		fmt.Sprintf("Who is assigned to %s?", key),
		fmt.Sprintf("What is the status of %s?", key),
		fmt.Sprintf("What project is %s part of?", key),
		fmt.Sprintf("What is the summary of %s?", key),
		fmt.Sprintf("Give a test plan for %s", key),
		fmt.Sprintf("What is the acceptance criteria for %s?", key),
		fmt.Sprintf("What is the impact of %s?", key),
		fmt.Sprintf("What is the root cause of %s?", key),
		fmt.Sprintf("What is the fix for %s?", key),
		fmt.Sprintf("What is the priority of %s?", key),
		fmt.Sprintf("What is the type of %s?", key),
		fmt.Sprintf("When was %s created?", key),
		fmt.Sprintf("When was %s updated?", key),
		fmt.Sprintf("What is the description of %s?", key),
		fmt.Sprintf("What is the context for %s?", key),
		fmt.Sprintf("How does %s relate to the product/company/project?", key),
	}
	if number := IssueNumber(key); number != "" {
		queries = append(queries,
			fmt.Sprintf("What is issue %s about?", number),
			fmt.Sprintf("How to test issue %s?", number),
			fmt.Sprintf("Who reported issue %s?", number),
			fmt.Sprintf("Who is assigned to issue %s?", number),
			fmt.Sprintf("What is the status of issue %s?", number),
			fmt.Sprintf("What project is issue %s part of?", number),
			fmt.Sprintf("What is the summary of issue %s?", number),
			fmt.Sprintf("Give a test plan for issue %s", number),
			fmt.Sprintf("What is the acceptance criteria for issue %s?", number),
			fmt.Sprintf("What is the impact of issue %s?", number),
			fmt.Sprintf("What is the root cause of issue %s?", number),
			fmt.Sprintf("What is the fix for issue %s?", number),
			fmt.Sprintf("What is the priority of issue %s?", number),
			fmt.Sprintf("What is the type of issue %s?", number),
			fmt.Sprintf("When was issue %s created?", number),
			fmt.Sprintf("When was issue %s updated?", number),
			fmt.Sprintf("What is the description of issue %s?", number),
			fmt.Sprintf("What is the context of issue %s?", number),
			fmt.Sprintf("How does issue %s relate to the product/company/project?", number),
		)
	}
	return "Example queries:\n- " + strings.Join(queries, "\n- ") + "\n"
}

func advancedProcessRule() dify.ProcessRule {
	return dify.ProcessRule{
		Mode: "custom",
		Rules: &dify.ProcessRules{
			PreProcessingRules: []dify.PreProcessingRule{
				{ID: "remove_extra_spaces", Enabled: true},
				{ID: "remove_urls_emails", Enabled: false},
			},
			Segmentation: &dify.Segmentation{
				Separator:    "###CHUNK###",
				MaxTokens:    AdvancedMaxTokens,
				ChunkOverlap: AdvancedChunkOverlap,
			},
		},
	}
}
