package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachememory "ragserver/internal/cache/memory"
	"ragserver/internal/chunker"
	"ragserver/internal/domain"
	storememory "ragserver/internal/vectorstore/memory"
)

const testDimension = 16

// stubEmbedder produces deterministic bag-of-words vectors, so chunks and
// queries that share words land close together in cosine space.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	dim   int
}

func newStubEmbedder() *stubEmbedder { return &stubEmbedder{dim: testDimension} }

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, s.dim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(word, ".,?!")))
			v[h.Sum32()%uint32(s.dim)]++
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubGenerator struct {
	mu         sync.Mutex
	calls      int
	text       string
	err        error
	lastPrompt string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	if s.text == "" {
		return "stub answer", nil
	}
	return s.text, nil
}

func (s *stubGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubGenerator) prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrompt
}

type recordingLog struct {
	mu    sync.Mutex
	items []domain.Interaction
	err   error
}

func (l *recordingLog) Append(ctx context.Context, it domain.Interaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.items = append(l.items, it)
	return nil
}

func (l *recordingLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *recordingLog) first() domain.Interaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items[0]
}

type fixture struct {
	svc       *Service
	embedder  *stubEmbedder
	generator *stubGenerator
	index     *storememory.Store
	log       *recordingLog
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	chk, err := chunker.NewWindowChunker(200, 50)
	require.NoError(t, err)
	emb := newStubEmbedder()
	index := storememory.NewStore()
	require.NoError(t, index.Init(context.Background(), emb.Dimension()))
	gen := &stubGenerator{}
	log := &recordingLog{}
	svc := New(chk, emb, index, gen, cachememory.NewCache(), log, nil, nil, opts)
	return &fixture{svc: svc, embedder: emb, generator: gen, index: index, log: log}
}

func healthcareDoc() domain.Document {
	return domain.Document{
		ID:          "1",
		Title:       "AI in Healthcare",
		Content:     strings.Repeat("AI helps doctors in healthcare by triaging medical imaging and flagging urgent cases. ", 7), // ~600 chars
		Source:      "Tech News",
		PublishedAt: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestIngestRejectsEmptyBatch(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Ingest(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, f.embedder.callCount())
}

func TestIngestSingleDocument(t *testing.T) {
	f := newFixture(t, Options{})
	res, err := f.svc.Ingest(context.Background(), []domain.Document{healthcareDoc()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ingested)
	assert.Equal(t, 0, res.Failed)
	assert.GreaterOrEqual(t, f.index.Len(), 2)
	assert.LessOrEqual(t, f.index.Len(), 4)
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, []domain.Document{healthcareDoc()})
	require.NoError(t, err)
	before := f.index.Len()

	_, err = f.svc.Ingest(ctx, []domain.Document{healthcareDoc()})
	require.NoError(t, err)
	assert.Equal(t, before, f.index.Len())
}

func TestIngestPartialFailure(t *testing.T) {
	f := newFixture(t, Options{})
	docs := []domain.Document{
		healthcareDoc(),
		{Title: "No ID", Content: "this document has no id"},
		{ID: "3", Title: "Empty", Content: ""},
	}
	res, err := f.svc.Ingest(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Ingested)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Reason, "document id is required")
}

func TestIngestEmbeddingFailureDoesNotBlockSiblings(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, []domain.Document{healthcareDoc()})
	require.NoError(t, err)
	stored := f.index.Len()

	f.embedder.err = fmt.Errorf("%w: quota exceeded", domain.ErrEmbeddingProvider)
	res, err := f.svc.Ingest(ctx, []domain.Document{
		{ID: "2", Title: "Doc 2", Content: "some fresh content"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ingested)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "2", res.Failures[0].DocumentID)
	assert.Equal(t, stored, f.index.Len())
}

func TestAnswerValidatesInput(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Answer(context.Background(), "", "query")
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.Answer(context.Background(), "s1", "  ")
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, f.embedder.callCount())
}

func TestAnswerEndToEnd(t *testing.T) {
	f := newFixture(t, Options{})
	f.generator.text = "AI is used for imaging triage."
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, []domain.Document{healthcareDoc()})
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)

	answer, err := f.svc.Answer(ctx, "s1", "How is AI used in healthcare?")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Text)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "AI in Healthcare", answer.Sources[0].Title)
	assert.GreaterOrEqual(t, answer.Sources[0].Relevance, 0.0)
	assert.LessOrEqual(t, answer.Sources[0].Relevance, 1.0)
}

func TestAnswerSecondCallHitsCache(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, []domain.Document{healthcareDoc()})
	require.NoError(t, err)

	first, err := f.svc.Answer(ctx, "s1", "How is AI used in healthcare?")
	require.NoError(t, err)
	second, err := f.svc.Answer(ctx, "s1", "  how is AI used in healthcare?  ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.generator.callCount())
}

func TestAnswerZeroMatches(t *testing.T) {
	f := newFixture(t, Options{})
	answer, err := f.svc.Answer(context.Background(), "s1", "anything at all")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Contains(t, f.generator.prompt(), noContextMarker)
}

func TestAnswerDimensionMismatchSurfaces(t *testing.T) {
	f := newFixture(t, Options{})
	// Re-pin the index to a different dimension than the embedder's.
	require.NoError(t, f.index.Init(context.Background(), testDimension*2))
	_, err := f.svc.Answer(context.Background(), "s1", "a question")
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 0, f.generator.callCount())
}

func TestAnswerGenerationFailureNotCached(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.generator.err = fmt.Errorf("%w: upstream 503", domain.ErrGenerationProvider)

	_, err := f.svc.Answer(ctx, "s1", "a question")
	require.ErrorIs(t, err, domain.ErrGenerationProvider)

	f.generator.err = nil
	_, err = f.svc.Answer(ctx, "s1", "a question")
	require.NoError(t, err)
	assert.Equal(t, 2, f.generator.callCount())
}

func TestAnswerEmbeddingFailureKeepsKind(t *testing.T) {
	f := newFixture(t, Options{})
	f.embedder.err = fmt.Errorf("%w: connection refused", domain.ErrEmbeddingProvider)
	_, err := f.svc.Answer(context.Background(), "s1", "a question")
	require.ErrorIs(t, err, domain.ErrEmbeddingProvider)
	assert.False(t, errors.Is(err, domain.ErrGenerationProvider))
}

func TestAnswerRecordsInteraction(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, []domain.Document{healthcareDoc()})
	require.NoError(t, err)

	_, err = f.svc.Answer(ctx, "s1", "How is AI used in healthcare?")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.log.count() == 1 }, time.Second, 10*time.Millisecond)
	it := f.log.first()
	assert.Equal(t, "s1", it.SessionID)
	assert.Equal(t, "How is AI used in healthcare?", it.Query)
	assert.NotEmpty(t, it.SourceIDs)
}

func TestAnswerLogFailureDoesNotSurface(t *testing.T) {
	f := newFixture(t, Options{})
	f.log.err = errors.New("disk full")
	answer, err := f.svc.Answer(context.Background(), "s1", "a question")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Text)
}

func TestClearSessionDropsCachedAnswers(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.Answer(ctx, "s1", "a question")
	require.NoError(t, err)
	require.Equal(t, 1, f.generator.callCount())

	require.NoError(t, f.svc.ClearSession(ctx, "s1"))

	_, err = f.svc.Answer(ctx, "s1", "a question")
	require.NoError(t, err)
	assert.Equal(t, 2, f.generator.callCount())
}

func TestClearSessionValidatesID(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.svc.ClearSession(context.Background(), " ")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestBuildPromptOrdersByScore(t *testing.T) {
	matches := []domain.RetrievedMatch{
		{ID: "a:0", Score: 0.9, Payload: domain.Payload{Title: "First", ChunkText: "alpha"}},
		{ID: "b:0", Score: 0.5, Payload: domain.Payload{Title: "Second", ChunkText: "beta"}},
	}
	prompt := buildPrompt("q", matches)
	assert.Less(t, strings.Index(prompt, "alpha"), strings.Index(prompt, "beta"))
	assert.Contains(t, prompt, "Question: q")
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 0.1235, roundScore(0.12345))
	assert.Equal(t, 0.0, roundScore(-0.3))
	assert.Equal(t, 1.0, roundScore(1.7))
}
