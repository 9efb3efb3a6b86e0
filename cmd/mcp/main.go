package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/decision-assistant/internal/adapters/mcp"
	"github.com/kirillkom/decision-assistant/internal/bootstrap"
	"github.com/kirillkom/decision-assistant/internal/config"
	"github.com/kirillkom/decision-assistant/internal/observability/logging"
)

const serviceName = "mcp"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	// stdout carries the JSON-RPC stream.
	logger := logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: serviceName, Logger: logger})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go func() {
		err := app.Queue.SubscribeCorpusChanged(ctx, func(context.Context, string) {
			app.RetrievalUC.InvalidateCorpusCache()
		})
		if err != nil {
			logger.Error("corpus_subscribe_failed", "error", err)
		}
	}()

	tools := mcpadapter.NewTools(app.RetrievalUC, app.AskUC, cfg.WorkflowMaxIterations, logger)
	stdio := server.NewStdioServer(mcpadapter.NewServer(tools))
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	logger.Info("mcp_stdio_started")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Error("mcp_stdio_failed", "error", err)
	}
}
