package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/usecase"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
}

func testChunks() []domain.Chunk {
	return []domain.Chunk{
		{ID: "c-0", DocumentID: "doc-1", ChunkIndex: 0, Text: "a", Metadata: map[string]string{domain.MetaSourceFile: "a.txt"}},
		{ID: "c-1", DocumentID: "doc-1", ChunkIndex: 1, Text: "b", Metadata: map[string]string{domain.MetaSourceFile: "a.txt"}},
	}
}

func TestIndexChunksEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var upserted []point
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			var body struct {
				Points []point `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			upserted = body.Points
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", testExecutor())
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	if err := client.IndexChunks(context.Background(), testChunks(), vectors); err != nil {
		t.Fatalf("first IndexChunks() error = %v", err)
	}
	if err := client.IndexChunks(context.Background(), testChunks(), vectors); err != nil {
		t.Fatalf("second IndexChunks() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if len(upserted) != 2 || upserted[0].ID != "c-0" || upserted[0].Payload[payloadDocID] != "doc-1" {
		t.Fatalf("unexpected upsert payload %+v", upserted)
	}
}

func TestEnsureCollectionConflictIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/docs" {
			http.Error(w, "already exists", http.StatusConflict)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", testExecutor())
	if err := client.IndexChunks(context.Background(), testChunks()[:1], [][]float32{{1}}); err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/docs" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs", testExecutor())
	err := client.IndexChunks(context.Background(), testChunks()[:1], [][]float32{{0.1, 0.2}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") || !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error with body, got %v", err)
	}
}

func TestSearchConvertsScoreToDistance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.9,"payload":{"text":"close","document_id":"doc-1","metadata":{"source_file":"a.txt","chunk_index":"0"}}},
			{"score":0.2,"payload":{"text":"far","document_id":"doc-2"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", testExecutor())
	hits, err := client.Search(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if math.Abs(hits[0].Distance-0.1) > 1e-9 || hits[0].Text != "close" {
		t.Fatalf("unexpected first hit %+v", hits[0])
	}
	if hits[0].Metadata[domain.MetaSourceFile] != "a.txt" || hits[1].Metadata[domain.MetaDocumentID] != "doc-2" {
		t.Fatalf("unexpected metadata %+v / %+v", hits[0].Metadata, hits[1].Metadata)
	}
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fixedEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type noChunks struct{}

func (noChunks) ListChunks(context.Context) ([]domain.Chunk, error) { return nil, nil }

func TestSearchScoresThresholdMonotonically(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.1,"payload":{"text":"weakly similar","document_id":"doc-1"}},
			{"score":-0.5,"payload":{"text":"anti-similar","document_id":"doc-2"}}
		]}`))
	}))
	defer server.Close()

	retrieval := usecase.NewRetrievalUseCase(
		usecase.NewSemanticSearcher(fixedEmbedder{}, New(server.URL, "docs", testExecutor())),
		usecase.NewKeywordRanker(noChunks{}, 0, 0.75),
		usecase.DefaultRetrievalConfig(),
		nil, nil,
	)

	got, err := retrieval.Query(context.Background(), "q", domain.QueryOptions{SemanticOnly: true})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("no hit reaches the default threshold, got %+v", got)
	}

	got, err = retrieval.Query(context.Background(), "q", domain.QueryOptions{SemanticOnly: true, ScoreThreshold: domain.Threshold(0.05)})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "weakly similar" || math.Abs(got[0].Score-0.1) > 1e-9 {
		t.Fatalf("expected only the weakly similar hit, got %+v", got)
	}
}

func TestSearchMissingCollectionIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	client := New(server.URL, "docs", testExecutor())
	hits, err := client.Search(context.Background(), []float32{1}, 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected empty result, got %v, %v", hits, err)
	}
	if err := client.DeleteByDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
}

func TestDeleteByDocumentFiltersOnDocumentID(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs/points/delete" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", testExecutor())
	if err := client.DeleteByDocument(context.Background(), "doc-9"); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), `"value":"doc-9"`) {
		t.Fatalf("expected document filter, got %s", raw)
	}
}
