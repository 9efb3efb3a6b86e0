package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/decision-assistant/internal/config"
	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

type ingestFake struct {
	err error
}

func (f ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty file"))
	}

	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_" + filename,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type documentsFake struct {
	err error
}

func (f documentsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "a.txt", MimeType: "text/plain", StoragePath: "a", Status: domain.StatusReady, ChunkCount: 3}, nil
}

type removerFake struct {
	removed []string
	err     error
}

func (f *removerFake) RemoveByID(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, id)
	return nil
}

func newRouterForTest(cfg config.Config, svc Services) http.Handler {
	if svc.Ingestor == nil {
		svc.Ingestor = ingestFake{}
	}
	if svc.Documents == nil {
		svc.Documents = documentsFake{}
	}
	if svc.Remover == nil {
		svc.Remover = &removerFake{}
	}
	if svc.Retriever == nil {
		svc.Retriever = &retrieverFake{}
	}
	if svc.Asker == nil {
		svc.Asker = &askerFake{}
	}
	return NewRouter(cfg, svc, discardLogger(), nil).Handler()
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newRouterForTest(config.Config{}, Services{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestUploadDocumentSuccess(t *testing.T) {
	handler := newRouterForTest(config.Config{}, Services{})
	body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello"))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var doc domain.Document
	if err := json.Unmarshal(res.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.ID != "doc-1" || doc.Filename != "notes.txt" || doc.Status != domain.StatusUploaded {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestUploadDocumentRequiresFileField(t *testing.T) {
	handler := newRouterForTest(config.Config{}, Services{})
	body, contentType := multipartBody(t, "attachment", "notes.txt", []byte("hello"))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentMapsInvalidInputTo400(t *testing.T) {
	handler := newRouterForTest(config.Config{}, Services{
		Ingestor: ingestFake{err: domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("unsupported file type \".zip\""))},
	})
	body, contentType := multipartBody(t, "file", "archive.zip", []byte("PK"))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !bytes.Contains(res.Body.Bytes(), []byte("unsupported file type")) {
		t.Fatalf("expected validation message in body, got %s", res.Body.String())
	}
}

func TestUploadDocumentRejectsOversizedBody(t *testing.T) {
	handler := newRouterForTest(config.Config{APIMaxBodyBytes: 512}, Services{})
	body, contentType := multipartBody(t, "file", "big.txt", bytes.Repeat([]byte("x"), 4096))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestGetDocumentByID(t *testing.T) {
	handler := newRouterForTest(config.Config{}, Services{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-7", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var doc domain.Document
	if err := json.Unmarshal(res.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.ID != "doc-7" || doc.ChunkCount != 3 {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestGetDocumentMapsNotFoundTo404(t *testing.T) {
	handler := newRouterForTest(config.Config{}, Services{
		Documents: documentsFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("id doc-9"))},
	})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-9", nil))

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	remover := &removerFake{}
	handler := newRouterForTest(config.Config{}, Services{Remover: remover})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-3", nil))

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(remover.removed) != 1 || remover.removed[0] != "doc-3" {
		t.Fatalf("expected doc-3 removal, got %v", remover.removed)
	}
}

func TestDeleteDocumentHidesInternalErrors(t *testing.T) {
	handler := newRouterForTest(config.Config{}, Services{
		Remover: &removerFake{err: errors.New("pq: connection refused to 10.0.0.5")},
	})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-3", nil))

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if bytes.Contains(res.Body.Bytes(), []byte("10.0.0.5")) {
		t.Fatalf("internal error text leaked: %s", res.Body.String())
	}
}

func TestUnknownMethodIsRejected(t *testing.T) {
	handler := newRouterForTest(config.Config{}, Services{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPut, "/v1/documents/doc-3", nil))

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
