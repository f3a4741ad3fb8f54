package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBasicTemplate(t *testing.T) {
	formatter := NewFormatter(ModeBasic)
	formatter.planner.counter = func(string) (int, error) { return 100, nil }

	doc, err := formatter.Format(flatRecord())
	require.NoError(t, err)

	want := "Jira Issue: REST-271\n" +
		"Project: REST\n" +
		"Type: Bug\n" +
		"Status: In Progress\n" +
		"Assignee: Jordan Doe\n" +
		"Created: 2024-01-02T10:00:00Z\n" +
		"Updated: 2024-01-03T11:00:00Z\n" +
		"\n" +
		"Summary: Fix login redirect\n" +
		"\n" +
		"Description:\n" +
		"Users are redirected to the wrong page."
	assert.Equal(t, want, doc.Text)
	assert.Equal(t, "Jira Issue REST-271", doc.Name)
	assert.Equal(t, "economy", doc.IndexingTechnique)
	assert.Equal(t, "automatic", doc.ProcessRule.Mode)
	require.NotNil(t, doc.ProcessRule.Segmentation)
	assert.Equal(t, "\n", doc.ProcessRule.Segmentation.Separator)
	assert.Equal(t, BasicMaxTokens, doc.ProcessRule.Segmentation.MaxTokens)
	assert.Equal(t, 0, doc.ProcessRule.Segmentation.ChunkOverlap)
	assert.Nil(t, doc.ProcessRule.Rules)
}

func TestFormatBasicOmitsAliasContent(t *testing.T) {
	formatter := NewFormatter(ModeBasic)
	formatter.planner.counter = func(string) (int, error) { return 100, nil }

	doc, err := formatter.Format(flatRecord())
	require.NoError(t, err)

	assert.NotContains(t, doc.Text, "Aliases:")
	assert.NotContains(t, doc.Text, "Example queries:")
}

func TestFormatAdvancedAliases(t *testing.T) {
	formatter := NewFormatter(ModeAdvanced)

	doc, err := formatter.Format(flatRecord())
	require.NoError(t, err)

	assert.Contains(t, doc.Text, "Aliases: REST-271, Issue REST-271, Jira REST-271, 271, Issue 271, Jira 271\n")
	assert.Contains(t, doc.Text, "- What is REST-271 about?\n")
	assert.Contains(t, doc.Text, "- What is issue 271 about?\n")
	assert.Contains(t, doc.Text, "- How does issue 271 relate to the product/company/project?\n")

	// The summary is restated ahead of the full template.
	restated := strings.Index(doc.Text, "Summary: Fix login redirect")
	template := strings.Index(doc.Text, "Jira Issue: REST-271")
	require.GreaterOrEqual(t, restated, 0)
	require.GreaterOrEqual(t, template, 0)
	assert.Less(t, restated, template)
}

func TestFormatAdvancedProcessRule(t *testing.T) {
	formatter := NewFormatter(ModeAdvanced)

	doc, err := formatter.Format(flatRecord())
	require.NoError(t, err)

	assert.Equal(t, "high_quality", doc.IndexingTechnique)
	assert.Equal(t, "custom", doc.ProcessRule.Mode)
	assert.Nil(t, doc.ProcessRule.Segmentation)
	require.NotNil(t, doc.ProcessRule.Rules)
	require.NotNil(t, doc.ProcessRule.Rules.Segmentation)
	assert.Equal(t, "###CHUNK###", doc.ProcessRule.Rules.Segmentation.Separator)
	assert.Equal(t, AdvancedMaxTokens, doc.ProcessRule.Rules.Segmentation.MaxTokens)
	assert.Equal(t, AdvancedChunkOverlap, doc.ProcessRule.Rules.Segmentation.ChunkOverlap)

	rules := doc.ProcessRule.Rules.PreProcessingRules
	require.Len(t, rules, 2)
	assert.Equal(t, "remove_extra_spaces", rules[0].ID)
	assert.True(t, rules[0].Enabled)
	assert.Equal(t, "remove_urls_emails", rules[1].ID)
	assert.False(t, rules[1].Enabled)
}

func TestFormatAdvancedKeyWithoutNumber(t *testing.T) {
	formatter := NewFormatter(ModeAdvanced)
	record := flatRecord()
	record["key"] = "NOKEY"

	doc, err := formatter.Format(record)
	require.NoError(t, err)

	assert.Contains(t, doc.Text, "Aliases: NOKEY, Issue NOKEY, Jira NOKEY\n")
	assert.NotContains(t, doc.Text, "What is issue  about?")
}

func TestFormatMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		record  Record
		missing []string
	}{
		{
			name:    "empty record",
			record:  Record{},
			missing: []string{"key", "summary", "description", "status"},
		},
		{
			name: "missing description",
			record: Record{
				"key":     "REST-1",
				"summary": "s",
				"status":  map[string]any{"name": "Open"},
			},
			missing: []string{"description"},
		},
		{
			name: "missing status",
			record: Record{
				"key":         "REST-2",
				"summary":     "s",
				"description": "d",
			},
			missing: []string{"status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := NewFormatter(ModeBasic)
			formatter.planner.counter = func(string) (int, error) { return 100, nil }

			_, err := formatter.Format(tt.record)
			var malformed *MalformedIssueError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.missing, malformed.Missing)
		})
	}
}

func TestFormatNestedShape(t *testing.T) {
	for _, mode := range []Mode{ModeBasic, ModeAdvanced} {
		t.Run(mode.String(), func(t *testing.T) {
			formatter := NewFormatter(mode)
			formatter.planner.counter = func(string) (int, error) { return 100, nil }

			doc, err := formatter.Format(nestedRecord())
			require.NoError(t, err)
			assert.Contains(t, doc.Text, "Jira Issue: REST-271")
			assert.Contains(t, doc.Text, "Description:\nUsers are redirected to the wrong page.")
		})
	}
}

func TestIssueNumber(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"REST-271", "271"},
		{"ABC-12-2", "2"},
		{"ABC", ""},
		{"", ""},
		{"QAREF-007", "007"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, IssueNumber(tt.key))
		})
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "Basic", ModeBasic.String())
	assert.Equal(t, "Advanced", ModeAdvanced.String())
}
