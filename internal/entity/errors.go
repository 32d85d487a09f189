package entity

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Configuration errors fail before any I/O
	ErrConfiguration  = errors.New("configuration error")
	ErrMissingAPIKey  = fmt.Errorf("%w: missing provider credentials", ErrConfiguration)
	ErrPhaseNotFound  = fmt.Errorf("%w: phase not found", ErrConfiguration)
	ErrPhaseExists    = fmt.Errorf("%w: phase already published", ErrConfiguration)
	ErrPhaseActive    = fmt.Errorf("%w: phase is active", ErrConfiguration)
	ErrInvalidOverlap = fmt.Errorf("%w: chunk overlap must be smaller than chunk size", ErrConfiguration)

	// Pipeline errors
	ErrIngestion  = errors.New("ingestion error")
	ErrRetrieval  = errors.New("retrieval error")
	ErrGeneration = errors.New("generation error")
	ErrEmbedding  = errors.New("embedding error")
	ErrTimeout    = errors.New("request timed out")

	// Validation errors
	ErrValidation          = errors.New("validation error")
	ErrMissingField        = fmt.Errorf("%w: required field is missing", ErrValidation)
	ErrUnknownMunicipality = fmt.Errorf("%w: unknown municipality", ErrValidation)
	ErrInvalidParameter    = fmt.Errorf("%w: invalid parameter", ErrValidation)
)

// Ingestion stages
const (
	StageChunk = "chunk"
	StageEmbed = "embed"
	StageStore = "store"
)

// IngestionError carries the document context of a failed ingestion.
// The prior index of the document is left untouched.
type IngestionError struct {
	Key   DocumentKey
	Stage string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.Key, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

func (e *IngestionError) Is(target error) bool {
	return target == ErrIngestion
}
