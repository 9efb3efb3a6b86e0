package mcpadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

type retrieverFake struct {
	text    string
	opts    domain.QueryOptions
	results []domain.RetrievedChunk
	err     error
}

func (f *retrieverFake) Query(_ context.Context, text string, opts domain.QueryOptions) ([]domain.RetrievedChunk, error) {
	f.text = text
	f.opts = opts
	return f.results, f.err
}

type askerFake struct {
	mode          string
	maxIterations int
	result        *domain.AskResult
	err           error
}

func (f *askerFake) Ask(_ context.Context, _ string, mode string, maxIterations int) (*domain.AskResult, error) {
	f.mode = mode
	f.maxIterations = maxIterations
	return f.result, f.err
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func newToolsForTest(r *retrieverFake, a *askerFake) *Tools {
	return NewTools(r, a, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(newToolsForTest(&retrieverFake{}, &askerFake{}))
	for _, name := range []string{ToolQueryDocuments, ToolAskQuestion} {
		if s.GetTool(name) == nil {
			t.Fatalf("tool %s not registered", name)
		}
	}
}

func TestHandleQueryFormatsPassages(t *testing.T) {
	retriever := &retrieverFake{results: []domain.RetrievedChunk{
		{Text: " Pricing grew 4%. ", Metadata: map[string]string{domain.MetaSourceFile: "q3.md"}, Score: 0.0328},
		{Text: "Churn is flat.", Score: 0.0161},
	}}
	tools := newToolsForTest(retriever, &askerFake{})

	res, err := tools.HandleQuery(context.Background(), callRequest(ToolQueryDocuments, map[string]any{
		"query": "pricing",
		"top_k": float64(2),
	}))
	if err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if retriever.opts.TopK != 2 {
		t.Fatalf("expected top_k 2, got %d", retriever.opts.TopK)
	}
	want := "[1] q3.md (score 0.0328)\nPricing grew 4%.\n\n[2] unknown (score 0.0161)\nChurn is flat."
	if got := resultText(t, res); got != want {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestHandleQueryRequiresQuery(t *testing.T) {
	tools := newToolsForTest(&retrieverFake{}, &askerFake{})
	res, err := tools.HandleQuery(context.Background(), callRequest(ToolQueryDocuments, map[string]any{"query": "  "}))
	if err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for blank query")
	}
}

func TestHandleQueryHidesBackendErrors(t *testing.T) {
	retriever := &retrieverFake{err: domain.WrapError(domain.ErrTemporary, "retrieval query", errors.New("dial tcp 10.1.1.1:6333"))}
	tools := newToolsForTest(retriever, &askerFake{})

	res, err := tools.HandleQuery(context.Background(), callRequest(ToolQueryDocuments, map[string]any{"query": "x"}))
	if err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if !res.IsError || strings.Contains(resultText(t, res), "10.1.1.1") {
		t.Fatalf("expected sanitized tool error, got %q", resultText(t, res))
	}
}

func TestHandleAskDefaultsAndFormatting(t *testing.T) {
	asker := &askerFake{result: &domain.AskResult{
		AgentType:       domain.AgentStrategic,
		Answer:          "Expand into the EU.",
		ConfidenceLevel: domain.ConfidenceMedium,
		RiskSummary: &domain.RiskSummary{Options: []domain.RiskOption{
			{Name: "Expand", Score: domain.Ptr(3.0), Level: "LOW"},
		}},
		Sources: []domain.RetrievedChunk{
			{Metadata: map[string]string{domain.MetaSourceFile: "plan.md"}},
			{Metadata: map[string]string{domain.MetaSourceFile: "plan.md"}},
		},
	}}
	tools := newToolsForTest(&retrieverFake{}, asker)

	res, err := tools.HandleAsk(context.Background(), callRequest(ToolAskQuestion, map[string]any{"question": "Expand?"}))
	if err != nil {
		t.Fatalf("HandleAsk() error = %v", err)
	}
	if asker.mode != "auto" || asker.maxIterations != 2 {
		t.Fatalf("expected defaults auto/2, got %q/%d", asker.mode, asker.maxIterations)
	}
	want := "Expand into the EU.\n\nConfidence: MEDIUM\n\nRisks:\n- Expand score 3.0 (LOW)\n\nSources: plan.md"
	if got := resultText(t, res); got != want {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestHandleAskInvalidModeIsToolError(t *testing.T) {
	asker := &askerFake{err: domain.WrapError(domain.ErrInvalidInput, "ask", errors.New(`unknown mode "deep"`))}
	tools := newToolsForTest(&retrieverFake{}, asker)

	res, err := tools.HandleAsk(context.Background(), callRequest(ToolAskQuestion, map[string]any{"question": "q", "mode": "deep"}))
	if err != nil {
		t.Fatalf("HandleAsk() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "unknown mode") {
		t.Fatalf("expected invalid-mode tool error, got %q", resultText(t, res))
	}
}
