package entity

// LLMCompletionRequest is a provider-neutral generation request
type LLMCompletionRequest struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	UserPrompt   string
}

// LLMCompletion is a validated generation result
type LLMCompletion struct {
	Text             string
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
}

type CompletionErrorKind string

const (
	CompletionErrorMalformed    CompletionErrorKind = "malformed_response"
	CompletionErrorNoChoices    CompletionErrorKind = "no_choices"
	CompletionErrorEmptyContent CompletionErrorKind = "empty_content"
	CompletionErrorRefused      CompletionErrorKind = "content_filtered"
	CompletionErrorProvider     CompletionErrorKind = "provider_error"
	CompletionErrorTimeout      CompletionErrorKind = "timeout"
)

// CompletionResult is either OK with a Value or carries an ErrorKind.
// Provider payloads are converted into this before anything reads them.
type CompletionResult struct {
	OK        bool
	Value     LLMCompletion
	ErrorKind CompletionErrorKind
}

func CompletionOK(value LLMCompletion) CompletionResult {
	return CompletionResult{OK: true, Value: value}
}

func CompletionFailed(kind CompletionErrorKind) CompletionResult {
	return CompletionResult{ErrorKind: kind}
}

// EmbeddingBatchResult is a validated embedding response for one batch
type EmbeddingBatchResult struct {
	Vectors     [][]float32
	TotalTokens *int
}
