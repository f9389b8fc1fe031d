package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragserver/internal/domain"
)

const noContextMarker = "No relevant context was found in the knowledge base."

// Answer runs the retrieval-augmented pipeline for one query. Stages are
// strictly sequential; a hard failure in embedding, search, or generation
// aborts the request with its error kind intact. Cache and log writes are
// best-effort and never fail the response.
func (s *Service) Answer(ctx context.Context, sessionID, query string) (domain.Answer, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Answer{}, fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(query) == "" {
		return domain.Answer{}, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}

	if cached, ok := s.cache.Get(ctx, sessionID, query); ok {
		s.metrics.ChatRequests.WithLabelValues("cache_hit").Inc()
		return cached, nil
	}

	start := time.Now()
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		s.metrics.ChatRequests.WithLabelValues("error").Inc()
		return domain.Answer{}, err
	}
	s.metrics.StageDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if len(vectors) != 1 {
		s.metrics.ChatRequests.WithLabelValues("error").Inc()
		return domain.Answer{}, fmt.Errorf("%w: got %d vectors for one query", domain.ErrEmbeddingProvider, len(vectors))
	}

	start = time.Now()
	matches, err := s.index.Query(ctx, vectors[0], s.opts.TopK, s.opts.Namespace)
	if err != nil {
		s.metrics.ChatRequests.WithLabelValues("error").Inc()
		return domain.Answer{}, err
	}
	s.metrics.StageDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())

	// Descending score, ties broken by vector id so the prompt is stable.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	prompt := buildPrompt(query, matches)

	start = time.Now()
	text, err := s.generator.Generate(ctx, prompt, s.opts.MaxTokens, s.opts.Temperature)
	if err != nil {
		s.metrics.ChatRequests.WithLabelValues("error").Inc()
		return domain.Answer{}, err
	}
	s.metrics.StageDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())

	answer := domain.Answer{Text: text, Sources: make([]domain.Source, 0, len(matches))}
	sourceIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		answer.Sources = append(answer.Sources, domain.Source{Title: m.Payload.Title, Relevance: roundScore(m.Score)})
		sourceIDs = append(sourceIDs, m.ID)
	}

	if err := s.cache.Set(ctx, sessionID, query, answer, s.opts.AnswerTTL); err != nil {
		s.logger.Warn("cache write failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	s.recordInteraction(sessionID, query, answer.Text, sourceIDs)

	s.metrics.ChatRequests.WithLabelValues("generated").Inc()
	return answer, nil
}

// recordInteraction writes the log entry in the background, detached from
// the request context. The response never waits for it and its failure is
// never surfaced.
func (s *Service) recordInteraction(sessionID, query, answer string, sourceIDs []string) {
	it := domain.Interaction{
		SessionID: sessionID,
		Query:     query,
		Answer:    answer,
		SourceIDs: sourceIDs,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.history.Append(ctx, it); err != nil {
			s.logger.Warn("interaction log write failed", zap.String("session_id", it.SessionID), zap.Error(err))
		}
	}()
}

// buildPrompt assembles the generation prompt from the query and the
// retrieved chunks, highest score first. With no matches the prompt states
// so explicitly; context is never fabricated.
func buildPrompt(query string, matches []domain.RetrievedMatch) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. If the context does not contain the answer, say so.\n\nContext:\n")
	if len(matches) == 0 {
		b.WriteString(noContextMarker)
		b.WriteString("\n")
	} else {
		for i, m := range matches {
			fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, m.Payload.Title, m.Payload.Source, m.Payload.ChunkText)
		}
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\nAnswer:")
	return b.String()
}

// roundScore clamps the store-native cosine similarity into [0,1] and
// rounds it to four decimals for presentation.
func roundScore(score float64) float64 {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return math.Round(score*10000) / 10000
}
