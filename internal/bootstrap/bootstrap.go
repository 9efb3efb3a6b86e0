package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/decision-assistant/internal/config"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
	"github.com/kirillkom/decision-assistant/internal/core/usecase"
	"github.com/kirillkom/decision-assistant/internal/core/workflow"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/extractor"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/vector/qdrant"
)

// Options carries the per-process pieces: each binary names itself and
// brings its own telemetry sinks. Nil observers are allowed.
type Options struct {
	Service    string
	Logger     *slog.Logger
	Resilience resilience.StateObserver
	Retrieval  ports.RetrievalObserver
	Ask        ports.AskObserver
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     *nats.Queue
	Documents ports.DocumentRepository

	IngestUC    *usecase.IngestDocumentUseCase
	ProcessUC   *usecase.ProcessDocumentUseCase
	RetrievalUC *usecase.RetrievalUseCase
	Workflow    *workflow.Engine
	AskUC       *usecase.AskUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	executorOpts := []resilience.Option{resilience.WithLogger(logger)}
	if opts.Resilience != nil {
		executorOpts = append(executorOpts, resilience.WithObserver(opts.Resilience))
	}
	executor := resilience.NewExecutor(resilience.DefaultConfig(), executorOpts...)
	modelExecutor := resilience.NewExecutor(resilience.ModelConfig(), executorOpts...)

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	documents := postgres.NewDocumentRepository(db)
	chunks := postgres.NewChunkRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ClientName:         opts.Service,
		CorpusSubject:      cfg.NATSCorpusSubject,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, modelExecutor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)

	retrievalUC := usecase.NewRetrievalUseCase(
		usecase.NewSemanticSearcher(embedder, vectorDB),
		usecase.NewKeywordRanker(chunks, cfg.RAGBM25K1, cfg.RAGBM25B),
		usecase.RetrievalConfig{
			TopK:           cfg.RAGTopK,
			PerSystemCap:   cfg.RAGPerSystemCap,
			ScoreThreshold: cfg.RAGScoreThreshold,
			RRFK:           cfg.RAGFusionRRFK,
		},
		logger,
		opts.Retrieval,
	)
	engine := workflow.NewEngine(retrievalUC, generator, logger, cfg.WorkflowMaxIterations)
	insightUC := usecase.NewInsightUseCase(retrievalUC, generator, logger)
	askUC := usecase.NewAskUseCase(insightUC, engine, generator, cfg.WorkflowMaxIterationsLimit, logger, opts.Ask)

	// Local invalidation keeps this process fresh at once; the broadcast reaches the others.
	notifier := usecase.CorpusNotifiers{retrievalUC, queue}
	ingestUC := usecase.NewIngestDocumentUseCase(documents, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(
		documents,
		chunks,
		extractor.New(storage),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		vectorDB,
		notifier,
		logger,
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Queue:     queue,
		Documents: documents,

		IngestUC:    ingestUC,
		ProcessUC:   processUC,
		RetrievalUC: retrievalUC,
		Workflow:    engine,
		AskUC:       askUC,

		closeFn: closeAll(queue, db),
	}, nil
}

func closeAll(queue *nats.Queue, db *sql.DB) func() {
	return func() {
		queue.Close()
		_ = db.Close()
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
