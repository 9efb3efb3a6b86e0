package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

// IngestDocumentUseCase accepts raw uploads. Extraction and indexing happen
// later in ProcessDocumentUseCase, driven by the queue.
type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{repo: repo, storage: storage, queue: queue}
}

// Upload stores the raw file, records it as uploaded and queues it for processing.
// A document whose job could not be queued is left in the failed state.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	filename = strings.TrimSpace(filename)
	switch {
	case filename == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	case !domain.IsSupportedFile(filename):
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document",
			fmt.Errorf("unsupported file type %q", filepath.Ext(filename)))
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:        uuid.NewString(),
		Filename:  filename,
		MimeType:  resolveMimeType(filename, mimeType),
		Status:    domain.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.StoragePath = doc.ID + "_" + sanitizeFilename(filename)

	if err := uc.storage.Save(ctx, doc.StoragePath, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		_ = uc.storage.Delete(context.WithoutCancel(ctx), doc.StoragePath)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		_ = uc.repo.UpdateStatus(context.WithoutCancel(ctx), doc.ID, domain.StatusFailed, "processing job could not be queued")
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return doc, nil
}

// resolveMimeType trusts the client unless it sent nothing useful.
func resolveMimeType(filename, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != domain.GenericMimeType {
		return declared
	}
	return domain.MimeTypeFor(filename)
}

// sanitizeFilename keeps ASCII letters, digits, dots, dashes and underscores.
func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		if isSafeFilenameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || out == "." {
		return "document.bin"
	}
	return out
}

func isSafeFilenameRune(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') ||
		r == '.' || r == '-' || r == '_'
}
