package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/decision-assistant/internal/adapters/http"
	"github.com/kirillkom/decision-assistant/internal/bootstrap"
	"github.com/kirillkom/decision-assistant/internal/config"
	"github.com/kirillkom/decision-assistant/internal/observability/logging"
	"github.com/kirillkom/decision-assistant/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    serviceName,
		Logger:     logger,
		Resilience: httpMetrics,
		Retrieval:  httpMetrics,
		Ask:        httpMetrics,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go func() {
		err := app.Queue.SubscribeCorpusChanged(ctx, func(_ context.Context, documentID string) {
			app.RetrievalUC.InvalidateCorpusCache()
			logger.Debug("corpus_cache_invalidated", "document_id", documentID)
		})
		if err != nil {
			logger.Error("corpus_subscribe_failed", "error", err)
		}
	}()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingestor:  app.IngestUC,
		Documents: app.Documents,
		Remover:   app.ProcessUC,
		Retriever: app.RetrievalUC,
		Asker:     app.AskUC,
	}, logger, httpMetrics)

	writeTimeout := 60 * time.Second
	if wt := cfg.WorkflowTimeout() + 15*time.Second; wt > writeTimeout {
		writeTimeout = wt
	}
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
