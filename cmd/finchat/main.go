package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cashium/finchat/internal/catalog"
	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/completion"
	"github.com/cashium/finchat/internal/config"
	"github.com/cashium/finchat/internal/httpapi"
	"github.com/cashium/finchat/internal/observability"
	"github.com/cashium/finchat/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, logCloser, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewStageWindow(cfg.StageWindowSize)

	ctx := context.Background()
	store, err := chat.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("chat store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, chats are held in memory only")
	}

	client := buildCompletionClient(cfg, logger, metrics, window)
	cat := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogPageSize, cfg.CatalogTimeout)

	orchestrator := pipeline.NewOrchestrator(
		logger, store, cat, client, metrics, window, cfg.RankConcurrency)

	api := httpapi.New(cfg, logger, orchestrator, store, metrics, window)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

// buildCompletionClient wires the provider pair. With both keys present
// DeepSeek is primary and DeepInfra the sticky fallback; with one key
// the single backend runs alone.
func buildCompletionClient(cfg config.Config, logger *slog.Logger, metrics *observability.Metrics, window *observability.StageWindow) completion.Client {
	backends := make(map[completion.Provider]completion.BackendConfig)
	if strings.TrimSpace(cfg.DeepSeekAPIKey) != "" {
		backends[completion.ProviderDeepSeek] = completion.BackendConfig{
			APIKey:       cfg.DeepSeekAPIKey,
			BaseURL:      cfg.DeepSeekBaseURL,
			Model:        cfg.DeepSeekModel,
			NativeSchema: true,
		}
	}
	if strings.TrimSpace(cfg.DeepInfraAPIKey) != "" {
		backends[completion.ProviderDeepInfra] = completion.BackendConfig{
			APIKey:  cfg.DeepInfraAPIKey,
			BaseURL: cfg.DeepInfraBaseURL,
			Model:   cfg.DeepInfraModel,
		}
	}
	if len(backends) == 0 {
		log.Fatalf("no completion provider configured: set DEEPSEEK_API_KEY or DEEPINFRA_API_KEY")
	}

	client := completion.NewOpenAIClient(logger, backends,
		completion.WithCallTimeout(cfg.CompletionTimeout),
		completion.WithRetryPolicy(cfg.CompletionRetries, 200*time.Millisecond, 2*time.Second),
		completion.WithErrorHook(func(p completion.Provider, schema string) {
			metrics.ProviderErrors.WithLabelValues(string(p), schema).Inc()
		}),
	)

	_, hasPrimary := backends[completion.ProviderDeepSeek]
	_, hasFallback := backends[completion.ProviderDeepInfra]
	if hasPrimary && hasFallback {
		return completion.NewFailoverClient(logger, client, client, completion.ProviderDeepInfra,
			completion.WithFailoverEvents(window.ObserveIndicator))
	}
	if hasFallback && !hasPrimary {
		logger.Warn("running on DeepInfra only, no DeepSeek key configured")
		return &singleProviderClient{inner: client, provider: completion.ProviderDeepInfra}
	}
	return client
}

// singleProviderClient pins every request to one backend.
type singleProviderClient struct {
	inner    completion.Client
	provider completion.Provider
}

func (s *singleProviderClient) Complete(ctx context.Context, req completion.Request) (string, error) {
	req.Provider = s.provider
	req.Model = ""
	return s.inner.Complete(ctx, req)
}
