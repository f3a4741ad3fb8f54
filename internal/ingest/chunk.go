package ingest

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/biscrum/jira-rag/internal/logging"
)

const (
	// EmbeddingModel is the model whose tokenizer approximates the
	// token counts the Dify server will see.
	EmbeddingModel = "text-embedding-ada-002"

	// BasicMaxTokens is the segmentation ceiling for basic-mode issue
	// documents.
	BasicMaxTokens = 1000
	// AdvancedMaxTokens is the fixed chunk size for advanced-mode issue
	// documents and the ceiling for summary-file documents.
	AdvancedMaxTokens = 2000
	// AdvancedChunkOverlap is the fixed overlap for advanced-mode issue
	// documents.
	AdvancedChunkOverlap = 400

	overlapRatio = 0.25
)

// TokenCounter estimates the token count of a text.
type TokenCounter func(text string) (int, error)

// Planner derives segmentation parameters for the knowledge base from a
// document's estimated token count. The ceiling is always returned as
// max_tokens; it is a segmentation hint, not an exact chunk boundary.
type Planner struct {
	ceiling int
	counter TokenCounter
}

// NewPlanner returns a planner with the given token ceiling, counting
// tokens with the embedding model's tokenizer.
func NewPlanner(ceiling int) *Planner {
	return &Planner{ceiling: ceiling, counter: countTokens}
}

// Plan returns (max_tokens, chunk_overlap) for the text: overlap is zero
// when the estimated token count fits under the ceiling, a quarter of
// the ceiling otherwise.
func (p *Planner) Plan(text string) (int, int) {
	count := p.tokenCount(text)
	logging.Debug("planned chunk parameters", "tokens", count, "ceiling", p.ceiling)
	if count <= p.ceiling {
		return p.ceiling, 0
	}
	return p.ceiling, int(float64(p.ceiling) * overlapRatio)
}

func (p *Planner) tokenCount(text string) int {
	count, err := p.counter(text)
	if err != nil {
		// Tokenizer unavailable (e.g. no cached encoding); fall back
		// to the rough four-characters-per-token estimate.
		logging.Warn("token counting failed, using length estimate", "error", err)
		return len(text) / 4
	}
	return count
}

func countTokens(text string) (int, error) {
	encoding, err := tiktoken.EncodingForModel(EmbeddingModel)
	if err != nil {
		return 0, err
	}
	return len(encoding.Encode(text, nil, nil)), nil
}
