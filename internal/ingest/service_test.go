package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biscrum/jira-rag/internal/dify"
)

// difyStub fakes the Dify dataset API and records every call so tests
// can assert on request counts and bodies.
type difyStub struct {
	mu sync.Mutex

	datasetCreates  int
	lastDatasetName string
	enableCalls     int
	metadataLists   int
	metadataCreates int
	createCalls     int
	attachCalls     int

	// fields is the metadata schema returned by the listing endpoint.
	fields []map[string]any
	// failCreates fails the nth document creation (1-based) with a 500.
	failCreates map[int]bool

	docNames []string
	docTexts []string
	attached []dify.MetadataOperation
}

func newDifyStub() *difyStub {
	return &difyStub{failCreates: map[int]bool{}}
}

func (st *difyStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(st.handle))
	t.Cleanup(srv.Close)
	return srv
}

func (st *difyStub) handle(w http.ResponseWriter, r *http.Request) {
	st.mu.Lock()
	defer st.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/datasets":
		st.datasetCreates++
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		st.lastDatasetName, _ = req["name"].(string)
		writeStubJSON(w, map[string]any{"id": "ds-new", "name": st.lastDatasetName})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/metadata/built-in/enable"):
		st.enableCalls++
		writeStubJSON(w, map[string]any{"result": "success"})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/documents/metadata"):
		st.attachCalls++
		var op dify.MetadataOperation
		_ = json.NewDecoder(r.Body).Decode(&op)
		st.attached = append(st.attached, op)
		writeStubJSON(w, map[string]any{"result": "success"})

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/metadata"):
		st.metadataLists++
		writeStubJSON(w, map[string]any{"doc_metadata": st.fields, "built_in_field_enabled": true})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/metadata"):
		st.metadataCreates++
		writeStubJSON(w, map[string]any{"id": "meta-1", "type": "string", "name": "issue_key"})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/document/create-by-text"):
		st.createCalls++
		if st.failCreates[st.createCalls] {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message":"internal error"}`)
			return
		}
		var doc map[string]any
		_ = json.NewDecoder(r.Body).Decode(&doc)
		name, _ := doc["name"].(string)
		text, _ := doc["text"].(string)
		st.docNames = append(st.docNames, name)
		st.docTexts = append(st.docTexts, text)
		writeStubJSON(w, map[string]any{
			"document": map[string]any{"id": fmt.Sprintf("doc-%d", st.createCalls), "name": name},
			"batch":    "batch-1",
		})

	default:
		http.NotFound(w, r)
	}
}

func writeStubJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// newStubService constructs a service against the stub with a fixed
// token counter so tests never depend on the tokenizer.
func newStubService(t *testing.T, stub *difyStub, opts Options) *Service {
	t.Helper()
	srv := stub.server(t)
	opts.APIKey = "test-key"
	opts.BaseURL = srv.URL

	svc, err := New(context.Background(), opts)
	require.NoError(t, err)
	svc.formatter.planner.counter = func(string) (int, error) { return 100, nil }
	svc.summaryPlanner.counter = func(string) (int, error) { return 100, nil }
	return svc
}

func issueRecords(keys ...string) []Record {
	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		records = append(records, Record{
			"key":         key,
			"summary":     "Summary for " + key,
			"description": "Description for " + key,
			"status":      map[string]any{"name": "Open"},
		})
	}
	return records
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Options{DatasetID: "ds-123"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewCreatesDatasetWhenUnset(t *testing.T) {
	tests := []struct {
		name      string
		datasetID string
	}{
		{"empty id", ""},
		{"placeholder id", DatasetIDPlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newDifyStub()
			svc := newStubService(t, stub, Options{DatasetID: tt.datasetID})

			assert.Equal(t, "ds-new", svc.DatasetID())
			assert.Equal(t, 1, stub.datasetCreates)
			assert.Regexp(t, `^Jira_API_Basic_\d{6}$`, stub.lastDatasetName)
		})
	}
}

func TestNewAdvancedDatasetName(t *testing.T) {
	stub := newDifyStub()
	newStubService(t, stub, Options{Advanced: true})
	assert.Regexp(t, `^Jira_API_Advanced_\d{6}$`, stub.lastDatasetName)
}

func TestNewKeepsExplicitDatasetID(t *testing.T) {
	stub := newDifyStub()
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	assert.Equal(t, "ds-123", svc.DatasetID())
	assert.Equal(t, 0, stub.datasetCreates)
}

func TestCreateDatasetStandalone(t *testing.T) {
	stub := newDifyStub()
	srv := stub.server(t)

	id, err := CreateDataset(context.Background(), Options{APIKey: "test-key", BaseURL: srv.URL}, "My Dataset")
	require.NoError(t, err)
	assert.Equal(t, "ds-new", id)
	assert.Equal(t, "My Dataset", stub.lastDatasetName)
}

func TestIngestIssuesContinuesPastFailures(t *testing.T) {
	stub := newDifyStub()
	stub.failCreates[2] = true
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	report, err := svc.IngestIssues(context.Background(), issueRecords("REST-1", "REST-2", "REST-3"))
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assert.NoError(t, report.Outcomes[0].Err)
	assert.Error(t, report.Outcomes[1].Err)
	assert.NoError(t, report.Outcomes[2].Err)
	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 1, report.Failed())

	// Two raw responses (create, metadata) per successful issue.
	assert.Len(t, report.Responses(), 4)
	assert.Equal(t, 3, stub.createCalls)
	assert.Equal(t, 2, stub.attachCalls)
}

func TestIngestIssuesSkipsMalformedRecords(t *testing.T) {
	stub := newDifyStub()
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	records := issueRecords("REST-1")
	records = append(records, Record{"key": "REST-2"})

	report, err := svc.IngestIssues(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	var malformed *MalformedIssueError
	require.ErrorAs(t, report.Outcomes[1].Err, &malformed)
	assert.Equal(t, "REST-2", malformed.Key)

	// Nothing was uploaded for the malformed record.
	assert.Equal(t, 1, stub.createCalls)
}

func TestIngestIssuesAttachesMetadata(t *testing.T) {
	stub := newDifyStub()
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	_, err := svc.IngestIssues(context.Background(), issueRecords("REST-1"))
	require.NoError(t, err)

	assert.Equal(t, 1, stub.enableCalls)
	assert.Equal(t, 1, stub.metadataCreates)
	require.Len(t, stub.attached, 1)
	require.Len(t, stub.attached[0].OperationData, 1)
	data := stub.attached[0].OperationData[0]
	assert.Equal(t, "doc-1", data.DocumentID)
	require.Len(t, data.MetadataList, 1)
	assert.Equal(t, "meta-1", data.MetadataList[0].ID)
	assert.Equal(t, "issue_key", data.MetadataList[0].Name)
	assert.Equal(t, "REST-1", data.MetadataList[0].Value)
}

func TestIngestIssuesReusesExistingMetadataField(t *testing.T) {
	stub := newDifyStub()
	stub.fields = []map[string]any{{"id": "meta-existing", "type": "string", "name": "issue_key"}}
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	_, err := svc.IngestIssues(context.Background(), issueRecords("REST-1"))
	require.NoError(t, err)

	assert.Equal(t, 0, stub.metadataCreates)
	require.Len(t, stub.attached, 1)
	assert.Equal(t, "meta-existing", stub.attached[0].OperationData[0].MetadataList[0].ID)
}

func TestIngestJSONFileShapes(t *testing.T) {
	issue := func(key string) map[string]any {
		return map[string]any{
			"key":         key,
			"summary":     "Summary for " + key,
			"description": "Description for " + key,
			"status":      map[string]any{"name": "Open"},
		}
	}

	tests := []struct {
		name     string
		payload  any
		wantKeys []string
	}{
		{
			name:     "issue list",
			payload:  []any{issue("REST-1"), issue("REST-2")},
			wantKeys: []string{"REST-1", "REST-2"},
		},
		{
			name:     "object with issues field",
			payload:  map[string]any{"issues": []any{issue("REST-3")}},
			wantKeys: []string{"REST-3"},
		},
		{
			name:     "single issue object",
			payload:  issue("REST-4"),
			wantKeys: []string{"REST-4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newDifyStub()
			svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

			path := filepath.Join(t.TempDir(), "issues.json")
			data, err := json.Marshal(tt.payload)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, data, 0o644))

			report, err := svc.IngestJSONFile(context.Background(), path)
			require.NoError(t, err)

			var keys []string
			for _, outcome := range report.Outcomes {
				require.NoError(t, outcome.Err)
				keys = append(keys, outcome.Key)
			}
			assert.Equal(t, tt.wantKeys, keys)
		})
	}
}

func TestIngestJSONFileMatchesDirectIngestion(t *testing.T) {
	records := issueRecords("REST-1", "REST-2", "REST-3")

	directStub := newDifyStub()
	direct := newStubService(t, directStub, Options{DatasetID: "ds-123"})
	directReport, err := direct.IngestIssues(context.Background(), records)
	require.NoError(t, err)

	fileStub := newDifyStub()
	fromFile := newStubService(t, fileStub, Options{DatasetID: "ds-123"})

	path := filepath.Join(t.TempDir(), "issues.json")
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fileReport, err := fromFile.IngestJSONFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, directReport.Succeeded(), fileReport.Succeeded())
	assert.Equal(t, directStub.docNames, fileStub.docNames)
	assert.Equal(t, directStub.docTexts, fileStub.docTexts)
}

func TestIngestJSONFileErrors(t *testing.T) {
	stub := newDifyStub()
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	t.Run("missing file", func(t *testing.T) {
		_, err := svc.IngestJSONFile(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "absent.json")
	})

	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		_, err := svc.IngestJSONFile(context.Background(), path)
		assert.Error(t, err)
	})

	t.Run("scalar top-level value", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scalar.json")
		require.NoError(t, os.WriteFile(path, []byte(`"hello"`), 0o644))
		_, err := svc.IngestJSONFile(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected top-level JSON value")
	})
}

func TestSummaryFileFanOut(t *testing.T) {
	stub := newDifyStub()
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	payload := map[string]any{
		"fields": map[string]any{
			"summary":      "The QAREF project tracks QA refactoring.",
			"contributors": []string{},
			"issue_count":  5,
		},
	}
	path := filepath.Join(t.TempDir(), "QAREF_SUMMARY.json")
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	report, err := svc.IngestJSONFile(context.Background(), path)
	require.NoError(t, err)

	// Empty fields are skipped; one document per populated field.
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "summary", report.Outcomes[0].Key)
	assert.Equal(t, "issue_count", report.Outcomes[1].Key)

	require.Len(t, stub.docTexts, 2)
	assert.Equal(t, "Summary of the project QAREF is:\nThe QAREF project tracks QA refactoring.", stub.docTexts[0])
	assert.Equal(t, "Issue count of the project QAREF is:\n5", stub.docTexts[1])
	assert.Equal(t, "Summary of the project QAREF is:", stub.docNames[0])

	// Summary documents carry no issue metadata.
	assert.Equal(t, 0, stub.attachCalls)
	assert.Equal(t, 0, stub.enableCalls)
}

func TestSummaryFileListShape(t *testing.T) {
	stub := newDifyStub()
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	payload := []map[string]any{
		{"fields": map[string]any{"summary": "First element wins."}},
		{"fields": map[string]any{"summary": "Ignored."}},
	}
	path := filepath.Join(t.TempDir(), "PROJ_SUMMARY.json")
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	report, err := svc.IngestJSONFile(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Contains(t, stub.docTexts[0], "First element wins.")
}

func TestSummaryFileEmptyList(t *testing.T) {
	stub := newDifyStub()
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	path := filepath.Join(t.TempDir(), "PROJ_SUMMARY.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	_, err := svc.IngestJSONFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty list")
}

func TestSummaryFileZeroIssueCount(t *testing.T) {
	stub := newDifyStub()
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	path := filepath.Join(t.TempDir(), "PROJ_SUMMARY.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"fields":{"issue_count":0}}`), 0o644))

	report, err := svc.IngestJSONFile(context.Background(), path)
	require.NoError(t, err)

	// Zero is a real count, not an absent field.
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "issue_count", report.Outcomes[0].Key)
	assert.Equal(t, "Issue count of the project PROJ is:\n0", stub.docTexts[0])
}

func TestSummaryFileAbortsOnCreateFailure(t *testing.T) {
	stub := newDifyStub()
	stub.failCreates[1] = true
	svc := newStubService(t, stub, Options{DatasetID: "ds-123"})

	path := filepath.Join(t.TempDir(), "PROJ_SUMMARY.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"fields":{"summary":"S","type":"Software"}}`), 0o644))

	report, err := svc.IngestJSONFile(context.Background(), path)
	require.Error(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, 1, stub.createCalls)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 60))
	long := strings.Repeat("x", 80)
	assert.Equal(t, strings.Repeat("x", 60), truncate(long, 60))
}
