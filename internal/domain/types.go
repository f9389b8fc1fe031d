package domain

import (
	"strconv"
	"time"
)

// Document is a text article supplied by the caller. The pipelines never
// mutate it; chunks are derived from its content.
type Document struct {
	ID          string
	Title       string
	Content     string
	Source      string
	PublishedAt time.Time
}

// Chunk is a bounded segment of a document's text. It is transient: it
// exists only between chunking and embedding and is never persisted on its
// own. Indices are dense and zero-based per document.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
}

// VectorID returns the stable identifier of the chunk's indexed vector.
// Re-ingesting the same document always produces the same ids, which makes
// upserts idempotent.
func (c Chunk) VectorID() string {
	return c.DocumentID + ":" + strconv.Itoa(c.Index)
}

// Payload is the metadata stored alongside each vector in the index.
type Payload struct {
	DocumentID  string
	ChunkText   string
	Title       string
	Source      string
	PublishedAt time.Time
}

// IndexedVector is a chunk embedding ready for upsert.
type IndexedVector struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// RetrievedMatch is one similarity-search hit, produced per query and
// ordered by descending score.
type RetrievedMatch struct {
	ID      string
	Score   float64
	Payload Payload
}

// Source is a citation attached to an answer. Relevance is the cosine
// similarity of the retrieved chunk, clamped to [0,1] and rounded for
// presentation.
type Source struct {
	Title     string  `json:"title"`
	Relevance float64 `json:"relevance"`
}

// Answer is the result of the answering pipeline.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Interaction is a write-once log record of one completed exchange.
type Interaction struct {
	ID        string
	SessionID string
	Query     string
	Answer    string
	SourceIDs []string
	CreatedAt time.Time
}

// IngestFailure reports why a single document in a batch was not ingested.
type IngestFailure struct {
	DocumentID string `json:"documentId"`
	Reason     string `json:"reason"`
}

// IngestResult is the per-batch accounting of the ingestion pipeline. A
// batch always produces a result; a failing document never aborts its
// siblings.
type IngestResult struct {
	Ingested int             `json:"ingested"`
	Failed   int             `json:"failed"`
	Failures []IngestFailure `json:"failures,omitempty"`
}

// UpsertFailure reports a single vector rejected by the index backend.
type UpsertFailure struct {
	ID     string
	Reason string
}

// UpsertResult is the per-item outcome of an index upsert.
type UpsertResult struct {
	Upserted int
	Failures []UpsertFailure
}
