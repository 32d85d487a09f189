package entity

import (
	"fmt"
	"reflect"
	"time"
)

// DocumentChunk is one indexed segment of a document under a phase.
// (MunicipalityID, DocumentTitle, ChunkIndex, Phase) is unique.
type DocumentChunk struct {
	MunicipalityID string    `json:"municipality_id"`
	DocumentTitle  string    `json:"document_title"`
	ChunkIndex     int       `json:"chunk_index"`
	ChunkText      string    `json:"chunk_text"`
	Embedding      []float32 `json:"-"`
	Phase          string    `json:"phase"`
}

// DocumentKey identifies one document within a phase
type DocumentKey struct {
	MunicipalityID string
	DocumentTitle  string
	Phase          string
}

func (k DocumentKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.MunicipalityID, k.DocumentTitle, k.Phase)
}

// DocumentSummary describes an indexed document
type DocumentSummary struct {
	DocumentTitle string    `json:"document_title"`
	Phase         string    `json:"phase"`
	ChunkCount    int       `json:"chunk_count"`
	IndexedAt     time.Time `json:"indexed_at"`
}

// EmbeddingSpec names the embedding model of a phase. Dimensions of zero
// accepts whatever length the provider returns, as long as it is consistent.
type EmbeddingSpec struct {
	Model      string `json:"model" yaml:"model"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions"`
}

// Pricing is USD per 1000 tokens
type Pricing struct {
	PromptPer1K     float64 `json:"prompt_per_1k" yaml:"prompt_per_1k"`
	CompletionPer1K float64 `json:"completion_per_1k" yaml:"completion_per_1k"`
}

// RAGConfig is an immutable tuning snapshot. A new phase is a new value.
type RAGConfig struct {
	Phase               string        `json:"phase" yaml:"phase"`
	Model               string        `json:"model" yaml:"model"`
	Temperature         float64       `json:"temperature" yaml:"temperature"`
	MaxTokens           int           `json:"max_tokens,omitempty" yaml:"max_tokens"`
	SimilarityThreshold float64       `json:"similarity_threshold" yaml:"similarity_threshold"`
	TopK                int           `json:"top_k" yaml:"top_k"`
	ChunkSize           int           `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap        int           `json:"chunk_overlap" yaml:"chunk_overlap"`
	Embedding           EmbeddingSpec `json:"embedding" yaml:"embedding"`
	Pricing             *Pricing      `json:"pricing,omitempty" yaml:"pricing"`
	Optimizations       []string      `json:"optimizations" yaml:"optimizations"`
}

// Equal reports whether both configs describe the same phase. Nil and empty
// optimizations are equal.
func (c RAGConfig) Equal(o RAGConfig) bool {
	if len(c.Optimizations) == 0 {
		c.Optimizations = nil
	}
	if len(o.Optimizations) == 0 {
		o.Optimizations = nil
	}
	return reflect.DeepEqual(c, o)
}

// Clone returns a deep copy
func (c RAGConfig) Clone() RAGConfig {
	out := c
	if c.Optimizations != nil {
		out.Optimizations = append([]string(nil), c.Optimizations...)
	}
	if c.Pricing != nil {
		p := *c.Pricing
		out.Pricing = &p
	}
	return out
}

// Validate checks the phase parameters
func (c RAGConfig) Validate() error {
	if c.Phase == "" {
		return fmt.Errorf("%w: phase name is required", ErrConfiguration)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: phase %s: model is required", ErrConfiguration, c.Phase)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("%w: phase %s: embedding model is required", ErrConfiguration, c.Phase)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("%w: phase %s: embedding dimensions must not be negative", ErrConfiguration, c.Phase)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: phase %s: temperature must be in [0,2], got %v", ErrConfiguration, c.Phase, c.Temperature)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: phase %s: similarity threshold must be in [0,1], got %v", ErrConfiguration, c.Phase, c.SimilarityThreshold)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: phase %s: top_k must be >= 1, got %d", ErrConfiguration, c.Phase, c.TopK)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: phase %s: chunk size must be positive, got %d", ErrConfiguration, c.Phase, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: phase %s: chunk overlap must be in [0,%d), got %d", ErrConfiguration, c.Phase, c.ChunkSize, c.ChunkOverlap)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: phase %s: max tokens must not be negative", ErrConfiguration, c.Phase)
	}
	return nil
}

// RetrievedSource is a chunk plus its similarity for one query
type RetrievedSource struct {
	DocumentTitle string  `json:"document_title"`
	ChunkIndex    int     `json:"chunk_index"`
	ChunkText     string  `json:"chunk_text"`
	Similarity    float64 `json:"similarity"`
}

// RetrievalResult is the ranked output of the retriever
type RetrievalResult struct {
	Sources    []RetrievedSource
	Candidates int
	Matched    int
}

type AnswerResponse struct {
	Answer   string            `json:"answer"`
	Sources  []RetrievedSource `json:"sources"`
	Metadata AnswerMetadata    `json:"metadata"`
}

type AnswerMetadata struct {
	AvgSimilarity    float64     `json:"avg_similarity"`
	TokensUsed       *int        `json:"tokens_used,omitempty"`
	ResponseTimeMs   int64       `json:"response_time_ms"`
	Phase            string      `json:"phase"`
	Model            string      `json:"model"`
	GenerationFailed bool        `json:"generation_failed"`
	GenerationError  string      `json:"generation_error,omitempty"`
	EstimatedCostUSD *float64    `json:"estimated_cost_usd,omitempty"`
	Debug            *QueryDebug `json:"debug,omitempty"`
}

// QueryDebug is attached only for verbose queries
type QueryDebug struct {
	SimilarityThreshold   float64  `json:"similarity_threshold"`
	TopK                  int      `json:"top_k"`
	CandidatesConsidered  int      `json:"candidates_considered"`
	MatchedAboveThreshold int      `json:"matched_above_threshold"`
	EmbeddingModel        string   `json:"embedding_model"`
	Optimizations         []string `json:"optimizations,omitempty"`
}

// AskOptions overrides per query. Zero values mean "use the phase".
type AskOptions struct {
	Phase   string
	TopK    *int
	Verbose bool
}

type IngestResult struct {
	RunID         string `json:"run_id"`
	ChunksCreated int    `json:"chunks_created"`
	Phase         string `json:"phase"`
}

type IngestDocumentRequest struct {
	MunicipalityID string
	DocumentTitle  string
	RawText        string
	Phase          string
}

// IngestOutcome is the per-document result of a batch ingestion
type IngestOutcome struct {
	DocumentTitle string
	Result        *IngestResult
	Err           error
}
