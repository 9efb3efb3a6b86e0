package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

// maxSourceBytes bounds how much of a stored file is read into memory.
const maxSourceBytes = 64 << 20

type formatFunc func(raw []byte) (string, error)

// Extractor reads a stored document and converts it to plain text by file extension.
type Extractor struct {
	storage ports.ObjectStorage
	formats map[string]formatFunc
}

func New(storage ports.ObjectStorage) *Extractor {
	return &Extractor{
		storage: storage,
		formats: map[string]formatFunc{
			".txt":  extractPlainText,
			".md":   extractPlainText,
			".pdf":  extractPDF,
			".html": extractHTML,
			".htm":  extractHTML,
			".xlsx": extractXLSX,
			".docx": extractDOCX,
		},
	}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	format, ok := e.formats[ext]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("unsupported file type %q", ext))
	}

	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, maxSourceBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if len(raw) > maxSourceBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("document exceeds %d bytes", maxSourceBytes))
	}

	text, err := format(raw)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract "+strings.TrimPrefix(ext, "."), err)
	}
	return normalizeWhitespace(text), nil
}

// normalizeWhitespace trims each line and collapses runs of blank lines to one.
func normalizeWhitespace(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
