package main

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragchat/internal/cache"
	"github.com/fyrsmithlabs/ragchat/internal/chat"
	"github.com/fyrsmithlabs/ragchat/internal/config"
	"github.com/fyrsmithlabs/ragchat/internal/fileindex"
	"github.com/fyrsmithlabs/ragchat/internal/logging"
	"github.com/fyrsmithlabs/ragchat/internal/metrics"
	"github.com/fyrsmithlabs/ragchat/internal/provider"
	"github.com/fyrsmithlabs/ragchat/internal/retrieval"
	"github.com/fyrsmithlabs/ragchat/internal/sanitize"
	"github.com/fyrsmithlabs/ragchat/internal/secrets"
	"github.com/fyrsmithlabs/ragchat/internal/telemetry"
)

const chatTracerName = "github.com/fyrsmithlabs/ragchat/internal/chat"

// app holds the long-lived services built from one config.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	metrics   *metrics.Metrics
	index     *fileindex.Index
	retriever retrieval.Retriever
	provider  *provider.Rotating
	cache     *chat.Cache
	chat      *chat.Service
}

func newLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Log)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

// newIndex validates the content root and builds the file index.
func newIndex(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*fileindex.Index, error) {
	root, err := sanitize.ValidateContentRoot(cfg.Index.ContentRoot)
	if err != nil {
		return nil, err
	}
	return fileindex.New(fileindex.Options{
		Root:        root,
		TTL:         cfg.Index.TTL.Duration(),
		MaxFileSize: cfg.Index.MaxFileSize,
		Extensions:  cfg.Index.Extensions,
		Excludes:    cfg.Index.Excludes,
		IgnoreFiles: cfg.Index.IgnoreFiles,
		Logger:      logger,
		Metrics:     m,
	})
}

func newRetriever(cfg *config.Config, idx *fileindex.Index, logger *logging.Logger) (retrieval.Retriever, error) {
	if cfg.Retrieval.Mode != config.ModeVector {
		return retrieval.NewScorer(idx, logger), nil
	}
	embedder, err := retrieval.NewOpenAIEmbedder(retrieval.EmbedderConfig{
		BaseURL: cfg.Retrieval.EmbeddingBaseURL,
		Model:   cfg.Retrieval.EmbeddingModel,
		APIKey:  cfg.Retrieval.EmbeddingAPIKey.Value(),
	})
	if err != nil {
		return nil, err
	}
	return retrieval.NewVectorRetriever(idx, embedder, retrieval.VectorOptions{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		Logger:       logger,
	})
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry, m *metrics.Metrics) (*app, error) {
	idx, err := newIndex(cfg, logger, m)
	if err != nil {
		return nil, fmt.Errorf("file index: %w", err)
	}
	retriever, err := newRetriever(cfg, idx, logger)
	if err != nil {
		return nil, fmt.Errorf("retriever: %w", err)
	}

	p, err := provider.New(cfg.AI, logger, m)
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	if !p.Configured() {
		logger.Warn(ctx, "no AI credentials configured; /ask will fail until ai.api_keys is set")
	}

	c, err := cache.New[chat.CachedAnswer](cache.Options{
		TTL:        cfg.Cache.TTL.Duration(),
		MaxEntries: cfg.Cache.MaxEntries,
		Metrics:    m,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	scrubCfg := secrets.DefaultConfig()
	scrubCfg.Enabled = cfg.Secrets.Enabled
	scrubber, err := secrets.New(scrubCfg)
	if err != nil {
		return nil, fmt.Errorf("secret scrubber: %w", err)
	}

	svc, err := chat.NewService(chat.Options{
		Retriever: retriever,
		Provider:  p,
		Cache:     c,
		Scrubber:  scrubber,
		TopK:      cfg.Retrieval.TopK,
		Logger:    logger,
		Metrics:   m,
		Tracer:    tel.Tracer(chatTracerName),
	})
	if err != nil {
		return nil, fmt.Errorf("chat service: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		index:     idx,
		retriever: retriever,
		provider:  p,
		cache:     c,
		chat:      svc,
	}, nil
}
