package dify

// Request and response schemas for the Dify dataset API, one type per
// endpoint so the wire contract is checked at compile time instead of
// being assembled from nested map literals.

// CreateDatasetRequest is the body of POST /datasets.
type CreateDatasetRequest struct {
	Name              string         `json:"name"`
	Permission        string         `json:"permission"`
	IndexingTechnique string         `json:"indexing_technique"`
	EmbeddingModel    string         `json:"embedding_model"`
	RetrievalModel    RetrievalModel `json:"retrieval_model"`
}

// RetrievalModel configures how the dataset answers retrieval queries.
type RetrievalModel struct {
	SearchMethod          string  `json:"search_method"`
	RerankingEnable       bool    `json:"reranking_enable"`
	TopK                  int     `json:"top_k"`
	ScoreThresholdEnabled bool    `json:"score_threshold_enabled"`
	ScoreThreshold        float64 `json:"score_threshold"`
}

// Dataset is the subset of the dataset representation we consume.
type Dataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Document is the body of POST /datasets/{id}/document/create-by-text.
type Document struct {
	Name              string      `json:"name"`
	Text              string      `json:"text"`
	IndexingTechnique string      `json:"indexing_technique"`
	ProcessRule       ProcessRule `json:"process_rule"`
}

// ProcessRule carries the segmentation policy for a document. Automatic
// mode puts the segmentation hint at the top level; custom mode nests it
// under Rules together with pre-processing switches.
type ProcessRule struct {
	Mode         string        `json:"mode"`
	Segmentation *Segmentation `json:"segmentation,omitempty"`
	Rules        *ProcessRules `json:"rules,omitempty"`
}

// ProcessRules holds the custom-mode rule set.
type ProcessRules struct {
	PreProcessingRules []PreProcessingRule `json:"pre_processing_rules,omitempty"`
	Segmentation       *Segmentation       `json:"segmentation,omitempty"`
}

// PreProcessingRule toggles a named Dify pre-processing step.
type PreProcessingRule struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

// Segmentation tells the service how to split document text into chunks.
type Segmentation struct {
	Separator    string `json:"separator"`
	MaxTokens    int    `json:"max_tokens"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

// DocumentInfo identifies a document created by the service.
type DocumentInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateDocumentResponse is the response of create-by-text.
type CreateDocumentResponse struct {
	Document DocumentInfo `json:"document"`
	Batch    string       `json:"batch,omitempty"`
}

// MetadataFieldRequest is the body of POST /datasets/{id}/metadata.
type MetadataFieldRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// MetadataField is a dataset-level metadata field definition.
type MetadataField struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Name string `json:"name"`
}

// MetadataFieldList is the response of GET /datasets/{id}/metadata.
type MetadataFieldList struct {
	DocMetadata         []MetadataField `json:"doc_metadata"`
	BuiltInFieldEnabled bool            `json:"built_in_field_enabled"`
}

// MetadataOperation is the body of POST /datasets/{id}/documents/metadata.
type MetadataOperation struct {
	OperationData []DocumentMetadata `json:"operation_data"`
}

// DocumentMetadata attaches metadata values to one document.
type DocumentMetadata struct {
	DocumentID   string          `json:"document_id"`
	MetadataList []MetadataValue `json:"metadata_list"`
}

// MetadataValue is a single metadata assignment.
type MetadataValue struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Name  string `json:"name"`
}

// DeleteDocumentsRequest is the body of DELETE /documents.
type DeleteDocumentsRequest struct {
	DocumentIDs []string `json:"document_ids"`
}
