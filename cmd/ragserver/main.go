package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	cachememory "ragserver/internal/cache/memory"
	cacheredis "ragserver/internal/cache/redis"
	"ragserver/internal/chunker"
	"ragserver/internal/config"
	"ragserver/internal/domain"
	embopenai "ragserver/internal/embedding/openai"
	"ragserver/internal/history"
	llmopenai "ragserver/internal/llm/openai"
	"ragserver/internal/metrics"
	"ragserver/internal/server"
	"ragserver/internal/service"
	storememory "ragserver/internal/vectorstore/memory"
	"ragserver/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragserver/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Assemble components
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "openai", "":
		if cfg.Embedder.OpenAI == nil {
			logger.Fatal("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Dimension: cfg.Embedder.OpenAI.Dimension,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			logger.Fatal("openai embedder init failed", zap.Error(err))
		}
		emb = client
	default:
		logger.Fatal("unknown embedder", zap.String("type", cfg.Embedder.Type))
	}

	var gen domain.Generator
	var maxTokens int
	var temperature float64
	switch cfg.Generator.Type {
	case "openai", "":
		if cfg.Generator.OpenAI == nil {
			logger.Fatal("openai generator config missing")
		}
		client, err := llmopenai.NewClient(llmopenai.Config{
			BaseURL:   cfg.Generator.OpenAI.BaseURL,
			APIKeyEnv: cfg.Generator.OpenAI.APIKeyEnv,
			Model:     cfg.Generator.OpenAI.Model,
			Timeout:   time.Duration(cfg.Generator.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			logger.Fatal("openai generator init failed", zap.Error(err))
		}
		gen = client
		maxTokens = cfg.Generator.OpenAI.MaxTokens
		temperature = cfg.Generator.OpenAI.Temperature
	default:
		logger.Fatal("unknown generator", zap.String("type", cfg.Generator.Type))
	}

	var index domain.VectorIndex
	switch cfg.VectorStore.Type {
	case "memory", "":
		index = storememory.NewStore()
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			logger.Fatal("qdrant config missing")
		}
		index = qdrant.NewStore(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		logger.Fatal("unknown vector store", zap.String("type", cfg.VectorStore.Type))
	}

	var respCache domain.ResponseCache
	switch cfg.Cache.Type {
	case "memory", "":
		respCache = cachememory.NewCache()
	case "redis":
		if cfg.Cache.Redis == nil {
			logger.Fatal("redis cache config missing")
		}
		cache, err := cacheredis.NewCache(cacheredis.Config{
			Address:  cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		}, logger)
		if err != nil {
			logger.Fatal("redis cache init failed", zap.Error(err))
		}
		defer cache.Close()
		respCache = cache
	default:
		logger.Fatal("unknown cache", zap.String("type", cfg.Cache.Type))
	}

	hist, err := history.NewStore(cfg.History.Path)
	if err != nil {
		logger.Fatal("interaction log init failed", zap.Error(err))
	}
	defer hist.Close()

	chk, err := chunker.NewWindowChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		logger.Fatal("chunker init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The index dimension is pinned to the embedder's before serving;
	// a mismatch is a configuration error and halts startup.
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = index.Init(initCtx, emb.Dimension())
	cancel()
	if err != nil {
		logger.Fatal("vector index init failed", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	svc := service.New(chk, emb, index, gen, respCache, hist, metrics.New(registry), logger, service.Options{
		TopK:        cfg.Retrieval.TopK,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Namespace:   cfg.Retrieval.Namespace,
		AnswerTTL:   time.Duration(cfg.Cache.TTLSecs) * time.Second,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(svc, logger, registry),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
	}

	go func() {
		logger.Info("serving", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
