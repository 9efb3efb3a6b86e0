package ports

import (
	"context"
	"io"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentRemover deletes a document and all of its chunks.
type DocumentRemover interface {
	RemoveByID(ctx context.Context, documentID string) error
}

// Retriever answers retrieval queries.
type Retriever interface {
	Query(ctx context.Context, text string, opts domain.QueryOptions) ([]domain.RetrievedChunk, error)
}

// RetrievalService is the hybrid retrieval entry point.
type RetrievalService interface {
	Retriever
	InvalidateCorpusCache()
}

// DecisionWorkflow runs the multi-step strategic analysis.
type DecisionWorkflow interface {
	Run(ctx context.Context, question string, maxIterations int) (*domain.DecisionResult, error)
}

// QuestionAnswerer routes a question to insight or strategic mode.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question string, mode string, maxIterations int) (*domain.AskResult, error)
}
