package domain

import (
	"context"
	"time"
)

// Chunker splits a document into bounded, overlapping segments suitable
// for embedding. Splitting is deterministic: identical input yields the
// identical sequence.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts text into fixed-dimension vectors via a remote model.
// Output order matches input order one-to-one. Implementations do not
// retry; retry policy belongs to the caller.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VectorIndex persists chunk vectors and supports top-K similarity search.
// Upsert is idempotent per vector id.
type VectorIndex interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, vectors []IndexedVector) (UpsertResult, error)
	Query(ctx context.Context, vector []float32, topK int, namespace string) ([]RetrievedMatch, error)
}

// Generator produces answer text for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// ResponseCache memoizes answers per (session, normalized query). It is a
// pure accelerator: a miss or a backend outage degrades to a full pipeline
// run, never to a request failure, so Get reports only presence.
type ResponseCache interface {
	Get(ctx context.Context, sessionID, query string) (Answer, bool)
	Set(ctx context.Context, sessionID, query string, answer Answer, ttl time.Duration) error
	Invalidate(ctx context.Context, sessionID string) error
}

// InteractionLog records completed exchanges. Write-once; the answering
// pipeline never reads it back.
type InteractionLog interface {
	Append(ctx context.Context, interaction Interaction) error
}
