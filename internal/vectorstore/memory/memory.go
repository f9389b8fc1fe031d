package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"ragserver/internal/domain"
)

// Store is an in-memory vector index using brute-force cosine similarity.
// Entries are keyed by vector id, so upserts overwrite instead of
// duplicating. Used for tests and single-node development setups.
type Store struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]entry
}

type entry struct {
	vector  []float32
	payload domain.Payload
}

func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrValidation, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.entries = make(map[string]entry)
	return nil
}

func (s *Store) Upsert(ctx context.Context, vectors []domain.IndexedVector) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v.Vector) != s.dimension {
			return res, fmt.Errorf("%w: vector %s has %d dimensions, index configured for %d",
				domain.ErrDimensionMismatch, v.ID, len(v.Vector), s.dimension)
		}
	}
	for _, v := range vectors {
		s.entries[v.ID] = entry{vector: v.Vector, payload: v.Payload}
		res.Upserted++
	}
	return res, nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]domain.RetrievedMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, index configured for %d",
			domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}
	matches := make([]domain.RetrievedMatch, 0, len(s.entries))
	for id, e := range s.entries {
		if namespace != "" && e.payload.Source != namespace {
			continue
		}
		matches = append(matches, domain.RetrievedMatch{ID: id, Score: cosine(vector, e.vector), Payload: e.payload})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len reports the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
