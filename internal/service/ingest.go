package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragserver/internal/domain"
)

// Ingest runs each document through chunk → embed → upsert. A failing
// document is reported in the result and never blocks its siblings. An
// empty batch is rejected before any external call is made.
func (s *Service) Ingest(ctx context.Context, documents []domain.Document) (domain.IngestResult, error) {
	var res domain.IngestResult
	if len(documents) == 0 {
		return res, fmt.Errorf("%w: documents list is empty", domain.ErrValidation)
	}
	for _, doc := range documents {
		if err := s.ingestOne(ctx, doc); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			res.Failures = append(res.Failures, domain.IngestFailure{DocumentID: doc.ID, Reason: err.Error()})
			s.metrics.DocumentsIngested.WithLabelValues("failed").Inc()
			s.logger.Warn("document ingest failed", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		res.Ingested++
		s.metrics.DocumentsIngested.WithLabelValues("ok").Inc()
	}
	s.logger.Info("ingest batch done", zap.Int("ingested", res.Ingested), zap.Int("failed", res.Failed))
	return res, nil
}

func (s *Service) ingestOne(ctx context.Context, doc domain.Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrValidation)
	}
	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbeddingProvider, len(vectors), len(chunks))
	}
	indexed := make([]domain.IndexedVector, len(chunks))
	for i, ch := range chunks {
		indexed[i] = domain.IndexedVector{
			ID:     ch.VectorID(),
			Vector: vectors[i],
			Payload: domain.Payload{
				DocumentID:  doc.ID,
				ChunkText:   ch.Text,
				Title:       doc.Title,
				Source:      doc.Source,
				PublishedAt: doc.PublishedAt,
			},
		}
	}
	upserted, err := s.index.Upsert(ctx, indexed)
	if err != nil {
		return err
	}
	if len(upserted.Failures) > 0 {
		return fmt.Errorf("%w: %d of %d chunks rejected (first: %s)",
			domain.ErrVectorStore, len(upserted.Failures), len(indexed), upserted.Failures[0].Reason)
	}
	return nil
}
