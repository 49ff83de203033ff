package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragchat/internal/config"
	"github.com/fyrsmithlabs/ragchat/internal/fileindex"
	httpserver "github.com/fyrsmithlabs/ragchat/internal/http"
	"github.com/fyrsmithlabs/ragchat/internal/logging"
	"github.com/fyrsmithlabs/ragchat/internal/metrics"
	"github.com/fyrsmithlabs/ragchat/internal/telemetry"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		contentRoot string
		port        int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the ragchat HTTP API: POST /ask, GET /health, GET /metrics and
POST /index/refresh.

Examples:
  # Serve the current directory
  ragchat serve

  # Serve another tree on a different port
  ragchat serve --root ../StudentManagementSystem --port 9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if contentRoot != "" {
				cfg.Index.ContentRoot = contentRoot
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&contentRoot, "root", "", "content root to index (overrides index.content_root)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

// runServe blocks until ctx is cancelled or the listener fails, then shuts
// the server down and waits for background work.
func runServe(ctx context.Context, cfg *config.Config) error {
	tel, err := telemetry.New(ctx, cfg.Telemetry, version)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	for _, problem := range tel.Problems() {
		logger.Warn(ctx, "telemetry degraded", zap.String("problem", problem))
	}

	a, err := newApp(ctx, cfg, logger, tel, metrics.Default())
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		warmUp(ctx, a.index, logger)
	}()

	if cfg.Index.Watch {
		w, err := fileindex.Watch(ctx, a.index, logger)
		if err != nil {
			logger.Warn(ctx, "file watcher disabled", zap.Error(err))
		} else {
			defer func() { _ = w.Close() }()
		}
	}

	server, err := httpserver.NewServer(httpserver.Deps{
		Chat:     a.chat,
		Provider: a.provider,
		Cache:    a.cache,
		Index:    a.index,
		Gatherer: prometheus.DefaultGatherer,
		Metrics:  httpserver.NewHTTPMetrics(tel.MeterProvider(), logger),
		Logger:   logger,
	}, &httpserver.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		AskRatePerMinute: cfg.Server.AskRatePerMinute,
		AskBurst:         cfg.Server.AskBurst,
		ProbeTimeout:     cfg.AI.ProbeTimeout.Duration(),
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "ragchat starting",
		zap.String("version", version),
		zap.String("content_root", a.index.Root()),
		zap.String("provider", a.provider.Name()),
		zap.Int("credentials", a.provider.Pool().Len()),
		zap.String("retrieval", cfg.Retrieval.Mode))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown failed", zap.Error(err))
	}
	wg.Wait()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
	}
	logger.Info(shutdownCtx, "ragchat stopped")
	return serveErr
}

// warmUp runs the first index scan so the first question does not pay
// for it.
func warmUp(ctx context.Context, idx *fileindex.Index, logger *logging.Logger) {
	files, err := idx.Files(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn(ctx, "index warm-up failed", zap.Error(err))
		}
		return
	}
	logger.Info(ctx, "index warm-up complete", zap.Int("files", len(files)))
}
