package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ragserver/internal/domain"
)

// Store is a minimal REST client to Qdrant. Collections are created with
// cosine distance, so match scores are already cosine similarity.
type Store struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "documents"
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection if missing and pins the dimension every later
// upsert and query is checked against.
func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrValidation, dimension)
	}
	s.dimension = dimension
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 if the collection already exists with the same schema.
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil)
}

// pointID maps the stable vector id onto a deterministic UUID, which is
// what Qdrant accepts as a point id. Re-upserting the same chunk always
// lands on the same point.
func pointID(vectorID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(vectorID)).String()
}

// Upsert writes the vectors with wait=true so a following query sees them.
// If the batch is rejected it is replayed point by point, so the caller
// learns which vectors failed instead of losing the whole batch.
func (s *Store) Upsert(ctx context.Context, vectors []domain.IndexedVector) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	if len(vectors) == 0 {
		return res, nil
	}
	for _, v := range vectors {
		if len(v.Vector) != s.dimension {
			return res, fmt.Errorf("%w: vector %s has %d dimensions, index configured for %d",
				domain.ErrDimensionMismatch, v.ID, len(v.Vector), s.dimension)
		}
	}
	points := make([]map[string]any, len(vectors))
	for i, v := range vectors {
		points[i] = map[string]any{
			"id":     pointID(v.ID),
			"vector": v.Vector,
			"payload": map[string]any{
				"vector_id":    v.ID,
				"document_id":  v.Payload.DocumentID,
				"chunk_text":   v.Payload.ChunkText,
				"title":        v.Payload.Title,
				"source":       v.Payload.Source,
				"published_at": v.Payload.PublishedAt.Format(time.RFC3339),
			},
		}
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection)
	if err := s.putJSON(ctx, url, map[string]any{"points": points}, nil); err == nil {
		res.Upserted = len(vectors)
		return res, nil
	}
	for i, v := range vectors {
		if err := s.putJSON(ctx, url, map[string]any{"points": []map[string]any{points[i]}}, nil); err != nil {
			res.Failures = append(res.Failures, domain.UpsertFailure{ID: v.ID, Reason: err.Error()})
			continue
		}
		res.Upserted++
	}
	if res.Upserted == 0 {
		return res, fmt.Errorf("%w: all %d points rejected", domain.ErrVectorStore, len(vectors))
	}
	return res, nil
}

// Query returns up to topK matches ordered by descending similarity. A
// non-empty namespace narrows the search to vectors whose source matches.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]domain.RetrievedMatch, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, index configured for %d",
			domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if namespace != "" {
		req["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "source", "match": map[string]any{"value": namespace}},
			},
		}
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	matches := make([]domain.RetrievedMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := domain.RetrievedMatch{Score: r.Score}
		if v, ok := r.Payload["vector_id"].(string); ok {
			m.ID = v
		}
		if v, ok := r.Payload["document_id"].(string); ok {
			m.Payload.DocumentID = v
		}
		if v, ok := r.Payload["chunk_text"].(string); ok {
			m.Payload.ChunkText = v
		}
		if v, ok := r.Payload["title"].(string); ok {
			m.Payload.Title = v
		}
		if v, ok := r.Payload["source"].(string); ok {
			m.Payload.Source = v
		}
		if v, ok := r.Payload["published_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				m.Payload.PublishedAt = ts
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *Store) putJSON(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPut, url, body, out)
}

func (s *Store) postJSON(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPost, url, body, out)
}

func (s *Store) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %v", domain.ErrVectorStore, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVectorStore, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrVectorStore, method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: %s", domain.ErrVectorStore, method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", domain.ErrVectorStore, err)
		}
	}
	return nil
}
