package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/decision-assistant/internal/adapters/cli"
	"github.com/kirillkom/decision-assistant/internal/bootstrap"
	"github.com/kirillkom/decision-assistant/internal/config"
	"github.com/kirillkom/decision-assistant/internal/observability/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	logger := logging.NewJSONLoggerTo(os.Stderr, "advisor", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "advisor", Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		return 1
	}
	defer app.Close()

	if timeout := cfg.WorkflowTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	root := cli.NewRootCommand(cli.Services{
		Ingestor:             app.IngestUC,
		Retriever:            app.RetrievalUC,
		Asker:                app.AskUC,
		DefaultMaxIterations: cfg.WorkflowMaxIterations,
	})
	root.SetOut(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
