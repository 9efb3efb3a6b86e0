package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/decision-assistant/internal/infrastructure/resilience"
)

const maxErrorBody = 2048

// StatusError is a non-2xx answer from the Ollama API.
type StatusError struct {
	Endpoint string
	Model    string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("ollama /api/%s (model %s): %d %s", e.Endpoint, e.Model, e.Code, http.StatusText(e.Code))
	if e.Code == http.StatusNotFound {
		msg += ", is the model pulled?"
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// classify retries blank completions without tripping the breaker; a
// model that answers nothing is flaky, not down.
func classify(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyTransport(err); ok {
		return class
	}
	if errors.Is(err, errEmptyResponse) {
		return resilience.ErrorClassification{Retryable: true}
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if resilience.RetryableHTTPStatus(statusErr.Code) {
			return resilience.Transient
		}
		return resilience.Ignored
	}
	return resilience.Permanent
}

// roundTrip posts payload to /api/<endpoint> and decodes the JSON answer into out.
func (c *Client) roundTrip(ctx context.Context, endpoint, model string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Endpoint: endpoint,
			Model:    model,
			Code:     resp.StatusCode,
			Body:     strings.TrimSpace(string(raw)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
