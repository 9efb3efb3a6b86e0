package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetChunkCount(ctx context.Context, id string, count int) error
}

// ChunkStore is the ordered, read-only view of every indexed chunk.
type ChunkStore interface {
	ListChunks(ctx context.Context) ([]domain.Chunk, error)
}

// ChunkRepository mutates the chunk store.
type ChunkRepository interface {
	ChunkStore
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// CorpusChangeNotifier is told after every add or remove of chunks.
type CorpusChangeNotifier interface {
	CorpusChanged(ctx context.Context, documentID string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// CorpusEvents broadcasts corpus changes between processes.
type CorpusEvents interface {
	CorpusChangeNotifier
	SubscribeCorpusChanged(ctx context.Context, handler func(context.Context, string)) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}

// VectorStore indexes chunk vectors and performs nearest-neighbour search.
type VectorStore interface {
	IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.SimilarityHit, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// SimilaritySearcher is the embedding-similarity search capability.
type SimilaritySearcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.SimilarityHit, error)
}

// TextGenerator is the external generation capability. Errors returned after
// the retry budget is spent wrap domain.ErrGeneration.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// RetrievalObserver receives retrieval telemetry.
type RetrievalObserver interface {
	ObserveRetrieval(mode string, results int)
	ObserveDegradation(source string)
}

// AskObserver receives per-question telemetry.
type AskObserver interface {
	ObserveAsk(agent string, outcome string, iterations int, duration time.Duration)
}
