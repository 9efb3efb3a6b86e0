package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	chunks    ports.ChunkRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	vectorDB  ports.VectorStore
	notifier  ports.CorpusChangeNotifier
	logger    *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	chunks ports.ChunkRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	notifier ports.CorpusChangeNotifier,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = CorpusNotifiers{}
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		chunks:    chunks,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vectorDB:  vectorDB,
		notifier:  notifier,
		logger:    logger,
	}
}

// ProcessByID extracts, chunks, embeds and indexes a document. Once its chunks
// are stored the corpus is announced as changed, even if later bookkeeping fails.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	chunks, err := uc.processPipeline(ctx, documentID)
	if err == nil {
		err = uc.chunks.SaveChunks(ctx, chunks)
		if err != nil {
			err = fmt.Errorf("save chunks: %w", err)
		}
	}
	if err != nil {
		return uc.fail(ctx, documentID, err)
	}
	defer uc.notify(context.WithoutCancel(ctx), documentID)

	if err := uc.repo.SetChunkCount(ctx, documentID, len(chunks)); err != nil {
		return uc.fail(ctx, documentID, fmt.Errorf("set chunk count: %w", err))
	}
	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return uc.fail(ctx, documentID, fmt.Errorf("set status=ready: %w", err))
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return nil, err
	}

	parts, err := uc.chunk(ctx, text)
	if err != nil {
		return nil, err
	}

	vectors, err := uc.embed(ctx, parts)
	if err != nil {
		return nil, err
	}

	chunks := buildChunks(doc, parts)
	if err := uc.index(ctx, chunks, vectors); err != nil {
		return nil, err
	}
	return chunks, nil
}

// RemoveByID drops a document's vectors, chunks and stored file, then marks it deleted.
// The corpus is announced as changed as soon as chunks were removed.
func (uc *ProcessDocumentUseCase) RemoveByID(ctx context.Context, documentID string) error {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status == domain.StatusDeleted {
		return nil
	}

	if err := uc.vectorDB.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	removed, err := uc.chunks.DeleteByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	defer uc.notify(context.WithoutCancel(ctx), documentID)

	if err := uc.repo.SetChunkCount(ctx, documentID, 0); err != nil {
		return fmt.Errorf("reset chunk count: %w", err)
	}
	if err := uc.markStatus(ctx, documentID, domain.StatusDeleted, ""); err != nil {
		return fmt.Errorf("set status=deleted: %w", err)
	}

	uc.logger.Info("document_removed", "document_id", documentID, "chunks", removed)
	return nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) chunk(_ context.Context, text string) ([]string, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	return vectors, nil
}

func (uc *ProcessDocumentUseCase) index(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if err := uc.vectorDB.IndexChunks(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("index chunks in vector db: %w", err)
	}
	return nil
}

// notify is best effort: the corpus is already consistent, a missed signal only delays a cache rebuild.
func (uc *ProcessDocumentUseCase) notify(ctx context.Context, documentID string) {
	if err := uc.notifier.CorpusChanged(ctx, documentID); err != nil {
		uc.logger.Warn("corpus_notify_failed", "document_id", documentID, "error", err)
	}
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

// fail records processErr on the document and returns it, joined with any
// error from recording it.
func (uc *ProcessDocumentUseCase) fail(ctx context.Context, documentID string, processErr error) error {
	if err := uc.markStatus(context.WithoutCancel(ctx), documentID, domain.StatusFailed, processErr.Error()); err != nil {
		return fmt.Errorf("%w; mark failed status: %v", processErr, err)
	}
	return processErr
}

// ChunkID is stable for a (document, index) pair so re-processing overwrites instead of duplicating.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(documentID+":"+strconv.Itoa(index))).String()
}

func buildChunks(doc *domain.Document, parts []string) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(parts))
	for i, text := range parts {
		chunks = append(chunks, domain.Chunk{
			ID:         ChunkID(doc.ID, i),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       text,
			Metadata: map[string]string{
				domain.MetaSourceFile: doc.Filename,
				domain.MetaDocumentID: doc.ID,
				domain.MetaChunkIndex: strconv.Itoa(i),
				domain.MetaMimeType:   doc.MimeType,
			},
		})
	}
	return chunks
}

// CorpusNotifiers fans a corpus change out to every notifier and joins their errors.
type CorpusNotifiers []ports.CorpusChangeNotifier

func (n CorpusNotifiers) CorpusChanged(ctx context.Context, documentID string) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.CorpusChanged(ctx, documentID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
