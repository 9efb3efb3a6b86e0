package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/infrastructure/resilience"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 1024
)

var errEmptyResponse = errors.New("ollama returned an empty response")

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.ModelConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Generator implements ports.TextGenerator on /api/generate.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return g.client.generate(ctx, "generate_text", prompt, false)
}

func (g *Generator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return g.client.generate(ctx, "generate_json", prompt, true)
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	vectors, err := resilience.Do(ctx, e.client.executor, "ollama.embed", func(callCtx context.Context) ([][]float32, error) {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.roundTrip(callCtx, "embed", e.client.embedModel, request, &response); err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, classify)
	if err != nil {
		return nil, resilience.MarkTemporary("ollama embed", err, classify)
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// generate retries transient failures and blank completions; once the budget
// is spent the error is reported as domain.ErrGeneration.
func (c *Client) generate(ctx context.Context, operation, prompt string, jsonFormat bool) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": defaultTemperature,
			"num_predict": defaultMaxTokens,
		},
	}
	if jsonFormat {
		reqBody["format"] = "json"
	}

	text, err := resilience.Do(ctx, c.executor, "ollama."+operation, func(callCtx context.Context) (string, error) {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.roundTrip(callCtx, "generate", c.genModel, reqBody, &response); err != nil {
			return "", err
		}
		out := strings.TrimSpace(response.Response)
		if out == "" {
			return "", errEmptyResponse
		}
		return out, nil
	}, classify)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", domain.WrapError(domain.ErrGeneration, "ollama "+operation, err)
	}
	return text, nil
}
