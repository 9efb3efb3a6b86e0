package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/resilience"
)

const (
	payloadText     = "text"
	payloadMetadata = "metadata"
	payloadDocID    = "document_id"
)

// errCollectionMissing is returned for 404s; nothing has been indexed yet.
var errCollectionMissing = errors.New("qdrant collection does not exist")

// Client implements ports.VectorStore against the qdrant REST API using cosine distance.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors)))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, point{
			ID:     chunk.ID,
			Vector: vectors[i],
			Payload: map[string]any{
				payloadDocID:    chunk.DocumentID,
				payloadText:     chunk.Text,
				payloadMetadata: chunk.Metadata,
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.call(ctx, "upsert", http.MethodPut, url, map[string]any{"points": points}, nil)
}

// Search returns hits ordered by ascending cosine distance (1 - similarity).
func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.SimilarityHit, error) {
	if limit <= 0 {
		return []domain.SimilarityHit{}, nil
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.call(ctx, "search", http.MethodPost, url, reqBody, &searchResp); err != nil {
		if errors.Is(err, errCollectionMissing) {
			return []domain.SimilarityHit{}, nil
		}
		return nil, err
	}

	out := make([]domain.SimilarityHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.SimilarityHit{
			Text:     getStringPayload(r.Payload, payloadText),
			Metadata: metadataPayload(r.Payload),
			Distance: 1 - r.Score,
		})
	}
	return out, nil
}

func (c *Client) DeleteByDocument(ctx context.Context, documentID string) error {
	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": payloadDocID, "match": map[string]any{"value": documentID}},
			},
		},
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	err := c.call(ctx, "delete", http.MethodPost, url, reqBody, nil)
	if errors.Is(err, errCollectionMissing) {
		return nil
	}
	return err
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.call(ctx, "ensure collection", http.MethodPut, url, reqBody, nil)

	var statusErr *statusError
	// 409 means the collection already exists.
	if err != nil && !(errors.As(err, &statusErr) && statusErr.code == http.StatusConflict) {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

type statusError struct {
	operation string
	code      int
	status    string
	body      string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, e.body)
}

// call performs one JSON round trip under the executor; network failures and
// retryable status codes are reported as domain.ErrTemporary.
func (c *Client) call(ctx context.Context, operation, method, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	return c.executor.Execute(ctx, "qdrant."+strings.ReplaceAll(operation, " ", "_"), func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if class, ok := resilience.ClassifyTransport(err); ok && class.Retryable {
				return domain.WrapError(domain.ErrTemporary, "qdrant "+operation, err)
			}
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("qdrant %s: %w", operation, errCollectionMissing)
		}
		if resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			statusErr := &statusError{
				operation: operation,
				code:      resp.StatusCode,
				status:    resp.Status,
				body:      strings.TrimSpace(string(raw)),
			}
			if resilience.RetryableHTTPStatus(resp.StatusCode) {
				return domain.WrapError(domain.ErrTemporary, "qdrant "+operation, statusErr)
			}
			return statusErr
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, resilience.TemporaryClassifier)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func metadataPayload(payload map[string]any) map[string]string {
	out := map[string]string{}
	if raw, ok := payload[payloadMetadata].(map[string]any); ok {
		for k, v := range raw {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	if id := getStringPayload(payload, payloadDocID); id != "" {
		if _, ok := out[domain.MetaDocumentID]; !ok {
			out[domain.MetaDocumentID] = id
		}
	}
	return out
}
