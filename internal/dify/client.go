// Package dify implements the HTTP client for the Dify dataset
// (knowledge base) API.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/biscrum/jira-rag/internal/logging"
)

const defaultTimeout = 30 * time.Second

// The error message Dify returns when no default embedding model is
// configured on the server. Dataset creation cannot succeed until an
// operator fixes the server, so we surface this as a distinct error.
const embeddingModelMissing = "Default model not found for ModelType.TEXT_EMBEDDING"

// RequestError is returned for any non-2xx response from the Dify API.
type RequestError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("dify %s %s failed: status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// ConfigurationError indicates the remote Dify server itself is
// misconfigured. The message is actionable and should be surfaced to
// the caller verbatim.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// Config controls how the client talks to the Dify API.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client is a thin, synchronous client for the Dify dataset API. All
// requests carry the dataset API key as a bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient constructs a client from the provided configuration.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateDataset creates a new dataset and returns it. A server-side
// "no default embedding model" failure is mapped to ConfigurationError.
func (c *Client) CreateDataset(ctx context.Context, req CreateDatasetRequest) (*Dataset, error) {
	var dataset Dataset
	endpoint := fmt.Sprintf("%s/datasets", c.baseURL)
	_, err := c.doRequest(ctx, http.MethodPost, endpoint, req, &dataset)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) && isEmbeddingModelMissing(reqErr.Body) {
			return nil, &ConfigurationError{
				Message: "Dify is not properly configured. Please configure the embeddings method on your Dify server.",
			}
		}
		return nil, err
	}
	logging.Info("dify dataset created", "id", dataset.ID, "name", dataset.Name)
	return &dataset, nil
}

// ListDatasets fetches the dataset list. Used as a connectivity probe;
// the response body is returned raw.
func (c *Client) ListDatasets(ctx context.Context) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/datasets", c.baseURL)
	return c.doRequest(ctx, http.MethodGet, endpoint, nil, nil)
}

// EnableBuiltinMetadata turns on the built-in metadata fields for the
// dataset. Must happen before custom metadata fields can be attached.
func (c *Client) EnableBuiltinMetadata(ctx context.Context, datasetID string) error {
	endpoint := fmt.Sprintf("%s/datasets/%s/metadata/built-in/enable", c.baseURL, datasetID)
	_, err := c.doRequest(ctx, http.MethodPost, endpoint, nil, nil)
	return err
}

// ListMetadataFields returns the metadata fields defined on the dataset.
func (c *Client) ListMetadataFields(ctx context.Context, datasetID string) (*MetadataFieldList, error) {
	var list MetadataFieldList
	endpoint := fmt.Sprintf("%s/datasets/%s/metadata", c.baseURL, datasetID)
	if _, err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateMetadataField defines a custom metadata field on the dataset and
// returns its assigned id.
func (c *Client) CreateMetadataField(ctx context.Context, datasetID string, req MetadataFieldRequest) (*MetadataField, error) {
	var field MetadataField
	endpoint := fmt.Sprintf("%s/datasets/%s/metadata", c.baseURL, datasetID)
	if _, err := c.doRequest(ctx, http.MethodPost, endpoint, req, &field); err != nil {
		return nil, err
	}
	return &field, nil
}

// CreateDocumentByText uploads one document into the dataset. The raw
// response body is returned alongside the decoded form so callers can
// accumulate verbatim API responses.
func (c *Client) CreateDocumentByText(ctx context.Context, datasetID string, doc Document) (*CreateDocumentResponse, json.RawMessage, error) {
	var created CreateDocumentResponse
	endpoint := fmt.Sprintf("%s/datasets/%s/document/create-by-text", c.baseURL, datasetID)
	raw, err := c.doRequest(ctx, http.MethodPost, endpoint, doc, &created)
	if err != nil {
		return nil, nil, err
	}
	return &created, raw, nil
}

// AttachDocumentMetadata assigns metadata values to already-created
// documents.
func (c *Client) AttachDocumentMetadata(ctx context.Context, datasetID string, op MetadataOperation) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/datasets/%s/documents/metadata", c.baseURL, datasetID)
	return c.doRequest(ctx, http.MethodPost, endpoint, op, nil)
}

// DeleteDocuments removes documents by id. Support depends on the Dify
// version; failures propagate to the caller.
func (c *Client) DeleteDocuments(ctx context.Context, documentIDs []string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/documents", c.baseURL)
	return c.doRequest(ctx, http.MethodDelete, endpoint, DeleteDocumentsRequest{DocumentIDs: documentIDs}, nil)
}

// doRequest performs one JSON request against the API. It returns the
// raw response body and optionally decodes it into out.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}, out interface{}) (json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decoding dify response from %s: %w", endpoint, err)
		}
	}
	return json.RawMessage(data), nil
}

func isEmbeddingModelMissing(body string) bool {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return strings.Contains(body, embeddingModelMissing)
	}
	return strings.Contains(payload.Message, embeddingModelMissing)
}
