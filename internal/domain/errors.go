package domain

import "errors"

// Error kinds surfaced by the pipelines. They are wrapped with %w at the
// failure site so callers classify with errors.Is and can tell an
// embedding outage apart from a generation outage.
var (
	ErrValidation         = errors.New("invalid input")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrEmbeddingProvider  = errors.New("embedding provider failure")
	ErrVectorStore        = errors.New("vector store failure")
	ErrGenerationProvider = errors.New("generation provider failure")
	ErrGenerationRefused  = errors.New("generation refused by provider")
)
