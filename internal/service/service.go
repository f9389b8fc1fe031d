package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ragserver/internal/domain"
	"ragserver/internal/metrics"
)

// Options bounds the answering pipeline. TopK is a fixed service-side
// constant rather than a caller input, to bound cost and latency.
type Options struct {
	TopK        int
	MaxTokens   int
	Temperature float64
	Namespace   string
	AnswerTTL   time.Duration
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	if o.AnswerTTL <= 0 {
		o.AnswerTTL = 15 * time.Minute
	}
}

// Service orchestrates the ingestion and answering pipelines over the
// injected gateways. It holds no mutable state of its own; all shared
// state lives in the external stores, which own their own concurrency
// control.
type Service struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	index     domain.VectorIndex
	generator domain.Generator
	cache     domain.ResponseCache
	history   domain.InteractionLog
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      Options
}

func New(chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex,
	generator domain.Generator, respCache domain.ResponseCache, history domain.InteractionLog,
	m *metrics.Metrics, logger *zap.Logger, opts Options) *Service {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &Service{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		generator: generator,
		cache:     respCache,
		history:   history,
		metrics:   m,
		logger:    logger,
		opts:      opts,
	}
}

// ClearSession drops the session's cached answers.
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	return s.cache.Invalidate(ctx, sessionID)
}
