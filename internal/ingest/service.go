package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/biscrum/jira-rag/internal/dify"
	"github.com/biscrum/jira-rag/internal/logging"
)

// ErrMissingAPIKey is returned when no Dify API key can be resolved at
// service construction.
var ErrMissingAPIKey = errors.New("missing Dify API key: provide one or set DIFY_DATASET_API_KEY")

// DatasetIDPlaceholder is the sentinel dataset id shipped in example
// configuration; it is treated the same as an unset dataset id.
const DatasetIDPlaceholder = "your-dataset-id"

// metadataFieldName links every document back to its source issue.
const metadataFieldName = "issue_key"

// summaryFileSuffix marks JSON inputs holding project-level aggregates
// instead of issue lists.
const summaryFileSuffix = "_SUMMARY.json"

// Options configures a Service. Callers resolve configuration (explicit
// arguments over environment-backed config) before constructing the
// service; the service itself never reads the environment.
type Options struct {
	APIKey    string
	BaseURL   string
	DatasetID string
	Advanced  bool
	Timeout   time.Duration
}

// Service is the ingestion facade. One instance owns one target dataset
// for the duration of a run; all state is fixed after construction.
type Service struct {
	client         *dify.Client
	datasetID      string
	mode           Mode
	formatter      *Formatter
	summaryPlanner *Planner
}

// Outcome reports what happened to a single record (or summary field).
// Exactly one of DocumentID/Err is meaningful.
type Outcome struct {
	Index            int
	Key              string
	DocumentID       string
	CreateResponse   json.RawMessage
	MetadataResponse json.RawMessage
	Err              error
}

// Report is the ordered per-item result of an ingestion run.
type Report struct {
	Outcomes []Outcome
}

// Responses flattens successful outcomes into the raw API response list:
// two entries (create, metadata) per successful issue, one per summary
// document.
func (r *Report) Responses() []json.RawMessage {
	var responses []json.RawMessage
	for _, o := range r.Outcomes {
		if o.Err != nil {
			continue
		}
		if o.CreateResponse != nil {
			responses = append(responses, o.CreateResponse)
		}
		if o.MetadataResponse != nil {
			responses = append(responses, o.MetadataResponse)
		}
	}
	return responses
}

// Succeeded counts outcomes without errors.
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts outcomes with errors.
func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// New constructs the ingestion service and ensures the target dataset
// exists. A missing API key fails immediately; an unset or placeholder
// dataset id triggers dataset creation.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	mode := ModeBasic
	if opts.Advanced {
		mode = ModeAdvanced
	}
	svc := &Service{
		client: dify.NewClient(dify.Config{
			APIKey:  opts.APIKey,
			BaseURL: opts.BaseURL,
			Timeout: opts.Timeout,
		}),
		datasetID:      opts.DatasetID,
		mode:           mode,
		formatter:      NewFormatter(mode),
		summaryPlanner: NewPlanner(AdvancedMaxTokens),
	}
	if svc.datasetID == "" || svc.datasetID == DatasetIDPlaceholder {
		id, err := svc.CreateDataset(ctx, "")
		if err != nil {
			return nil, err
		}
		svc.datasetID = id
		logging.Info("created new dataset", "dataset_id", id)
	} else {
		logging.Info("using existing dataset", "dataset_id", svc.datasetID)
	}
	return svc, nil
}

// DatasetID returns the dataset this service uploads into.
func (s *Service) DatasetID() string {
	return s.datasetID
}

// Client exposes the underlying Dify client for connectivity probes.
func (s *Service) Client() *dify.Client {
	return s.client
}

// CreateDataset creates a dataset with the fixed indexing and retrieval
// configuration. An empty name gets a generated one.
func (s *Service) CreateDataset(ctx context.Context, name string) (string, error) {
	return createDataset(ctx, s.client, s.mode, name)
}

// CreateDataset creates a dataset without constructing a full service,
// for callers that only need the dataset id.
func CreateDataset(ctx context.Context, opts Options, name string) (string, error) {
	if opts.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	mode := ModeBasic
	if opts.Advanced {
		mode = ModeAdvanced
	}
	client := dify.NewClient(dify.Config{
		APIKey:  opts.APIKey,
		BaseURL: opts.BaseURL,
		Timeout: opts.Timeout,
	})
	return createDataset(ctx, client, mode, name)
}

func createDataset(ctx context.Context, client *dify.Client, mode Mode, name string) (string, error) {
	if name == "" {
		name = fmt.Sprintf("Jira_API_%s_%d", mode, 100000+rand.Intn(900000))
	}
	dataset, err := client.CreateDataset(ctx, dify.CreateDatasetRequest{
		Name:              name,
		Permission:        "only_me",
		IndexingTechnique: "high_quality",
		EmbeddingModel:    EmbeddingModel,
		RetrievalModel: dify.RetrievalModel{
			SearchMethod:          "hybrid_search",
			RerankingEnable:       false,
			TopK:                  8,
			ScoreThresholdEnabled: true,
			ScoreThreshold:        0.5,
		},
	})
	if err != nil {
		return "", err
	}
	return dataset.ID, nil
}

// IngestIssues uploads the records into the dataset, one document plus
// one metadata attachment per record. Setup failures (metadata schema)
// abort the run; per-record failures are recorded in the report and the
// loop continues.
func (s *Service) IngestIssues(ctx context.Context, records []Record) (*Report, error) {
	logging.Info("starting ingestion", "issues", len(records), "dataset_id", s.datasetID, "mode", s.mode.String())

	metadataID, err := s.ensureMetadataField(ctx)
	if err != nil {
		return nil, fmt.Errorf("enabling metadata schema: %w", err)
	}

	report := &Report{Outcomes: make([]Outcome, 0, len(records))}
	for idx, record := range records {
		outcome := s.ingestOne(ctx, idx, record, metadataID)
		if outcome.Err != nil {
			logging.Error("failed to process issue",
				"index", idx,
				"key", outcome.Key,
				"error", outcome.Err)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	logging.Info("completed ingestion",
		"succeeded", report.Succeeded(),
		"failed", report.Failed())
	return report, nil
}

func (s *Service) ingestOne(ctx context.Context, idx int, record Record, metadataID string) Outcome {
	outcome := Outcome{Index: idx, Key: record.Key()}

	doc, err := s.formatter.Format(record)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	created, raw, err := s.client.CreateDocumentByText(ctx, s.datasetID, *doc)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.DocumentID = created.Document.ID
	outcome.CreateResponse = raw

	metaRaw, err := s.client.AttachDocumentMetadata(ctx, s.datasetID, dify.MetadataOperation{
		OperationData: []dify.DocumentMetadata{{
			DocumentID: created.Document.ID,
			MetadataList: []dify.MetadataValue{{
				ID:    metadataID,
				Value: outcome.Key,
				Name:  metadataFieldName,
			}},
		}},
	})
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.MetadataResponse = metaRaw
	return outcome
}

// ensureMetadataField enables built-in metadata and returns the id of
// the issue_key field, reusing an existing field when one is already
// defined so repeated runs against the same dataset stay safe.
func (s *Service) ensureMetadataField(ctx context.Context) (string, error) {
	if err := s.client.EnableBuiltinMetadata(ctx, s.datasetID); err != nil {
		return "", err
	}
	if list, err := s.client.ListMetadataFields(ctx, s.datasetID); err == nil {
		for _, field := range list.DocMetadata {
			if field.Name == metadataFieldName {
				logging.Debug("reusing existing metadata field", "metadata_id", field.ID)
				return field.ID, nil
			}
		}
	} else {
		// Older Dify versions lack the listing endpoint; try creating
		// the field directly.
		logging.Warn("listing metadata fields failed", "error", err)
	}
	field, err := s.client.CreateMetadataField(ctx, s.datasetID, dify.MetadataFieldRequest{
		Type: "string",
		Name: metadataFieldName,
	})
	if err != nil {
		return "", err
	}
	logging.Info("created metadata field", "metadata_id", field.ID)
	return field.ID, nil
}

// IngestJSONFile ingests issues (or a project summary) from a JSON file.
// Files named *_SUMMARY.json fan out into per-field documents; other
// files may hold an issue list, an object with an "issues" list, or a
// single issue object.
func (s *Service) IngestJSONFile(ctx context.Context, path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if strings.HasSuffix(filepath.Base(path), summaryFileSuffix) {
		logging.Info("detected summary file", "path", path)
		return s.ingestSummaryFile(ctx, data, path)
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	switch value := payload.(type) {
	case []any:
		logging.Info("processing issue list", "path", path, "count", len(value))
		return s.IngestIssues(ctx, toRecords(value))
	case map[string]any:
		if issues, ok := value["issues"].([]any); ok {
			logging.Info("processing issues field", "path", path, "count", len(issues))
			return s.IngestIssues(ctx, toRecords(issues))
		}
		logging.Info("processing single issue document", "path", path)
		return s.IngestIssues(ctx, []Record{Record(value)})
	default:
		return nil, fmt.Errorf("parsing %s: unexpected top-level JSON value", path)
	}
}

func toRecords(items []any) []Record {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			records = append(records, Record(m))
		} else {
			// Non-object entries fail required-field validation and are
			// reported per item instead of aborting the batch.
			records = append(records, Record{})
		}
	}
	return records
}

// summaryFile is the shape of *_SUMMARY.json inputs: project-level
// aggregates under a "fields" mapping.
type summaryFile struct {
	Fields summaryFields `json:"fields"`
}

type summaryFields struct {
	Summary      string   `json:"summary"`
	Contributors []string `json:"contributors"`
	Assignees    []string `json:"assignees"`
	Reporters    []string `json:"reporters"`
	IssueCount   *int64   `json:"issue_count"`
	Type         string   `json:"type"`
}

// ingestSummaryFile fans one project summary into independent documents,
// one per non-empty field. No metadata is attached in this mode.
func (s *Service) ingestSummaryFile(ctx context.Context, data []byte, path string) (*Report, error) {
	var summary summaryFile
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []summaryFile
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("parsing %s: summary file is an empty list", path)
		}
		summary = list[0]
	} else if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	projectName := strings.TrimSuffix(filepath.Base(path), summaryFileSuffix)
	fields := summary.Fields

	issueCount := ""
	if fields.IssueCount != nil {
		issueCount = strconv.FormatInt(*fields.IssueCount, 10)
	}
	entries := []struct {
		field string
		label string
		value string
	}{
		{"summary", fmt.Sprintf("Summary of the project %s is:", projectName), fields.Summary},
		{"contributors", fmt.Sprintf("Contributors of the project %s are:", projectName), strings.Join(fields.Contributors, ", ")},
		{"assignees", fmt.Sprintf("Assignees of the project %s are:", projectName), strings.Join(fields.Assignees, ", ")},
		{"reporters", fmt.Sprintf("Reporters of the project %s are:", projectName), strings.Join(fields.Reporters, ", ")},
		{"issue_count", fmt.Sprintf("Issue count of the project %s is:", projectName), issueCount},
		{"type", fmt.Sprintf("Type of the project %s is:", projectName), fields.Type},
	}

	report := &Report{}
	for idx, entry := range entries {
		if strings.TrimSpace(entry.value) == "" {
			continue
		}
		text := entry.label + "\n" + entry.value
		maxTokens, overlap := s.summaryPlanner.Plan(text)
		doc := dify.Document{
			Name:              truncate(entry.label, 60),
			Text:              text,
			IndexingTechnique: "high_quality",
			ProcessRule: dify.ProcessRule{
				Mode: "custom",
				Rules: &dify.ProcessRules{
					PreProcessingRules: []dify.PreProcessingRule{
						{ID: "remove_extra_spaces", Enabled: true},
						{ID: "remove_urls_emails", Enabled: false},
					},
					Segmentation: &dify.Segmentation{
						Separator:    "\n\n",
						MaxTokens:    maxTokens,
						ChunkOverlap: overlap,
					},
				},
			},
		}
		logging.Info("creating summary document", "field", entry.field, "project", projectName)
		created, raw, err := s.client.CreateDocumentByText(ctx, s.datasetID, doc)
		if err != nil {
			return report, err
		}
		report.Outcomes = append(report.Outcomes, Outcome{
			Index:          idx,
			Key:            entry.field,
			DocumentID:     created.Document.ID,
			CreateResponse: raw,
		})
	}
	return report, nil
}

// DeleteDocuments removes documents from the dataset service by id.
func (s *Service) DeleteDocuments(ctx context.Context, documentIDs []string) (json.RawMessage, error) {
	return s.client.DeleteDocuments(ctx, documentIDs)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
