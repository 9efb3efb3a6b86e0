package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

type retrieverFake struct {
	text string
	opts domain.QueryOptions
}

func (f *retrieverFake) Query(_ context.Context, text string, opts domain.QueryOptions) ([]domain.RetrievedChunk, error) {
	f.text = text
	f.opts = opts
	return []domain.RetrievedChunk{
		{Text: "Churn   fell\nin Q3.", Metadata: map[string]string{domain.MetaSourceFile: "q3.md"}, Score: 0.0328},
	}, nil
}

type askerFake struct {
	question      string
	mode          string
	maxIterations int
}

func (f *askerFake) Ask(_ context.Context, question, mode string, maxIterations int) (*domain.AskResult, error) {
	f.question = question
	f.mode = mode
	f.maxIterations = maxIterations
	return &domain.AskResult{
		AgentType:       domain.AgentStrategic,
		Answer:          "Enter the EU market.",
		ConfidenceLevel: domain.ConfidenceHigh,
		ReasoningTrace:  []domain.TraceEntry{{Node: "classify", Summary: "strategic"}},
		RiskSummary:     &domain.RiskSummary{OverallLevel: "MEDIUM"},
		Sources:         []domain.RetrievedChunk{{Metadata: map[string]string{domain.MetaSourceFile: "plan.md"}}},
	}, nil
}

type ingestorFake struct {
	uploads map[string]string
}

func (f *ingestorFake) Upload(_ context.Context, filename, _ string, body io.Reader) (*domain.Document, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(filename, ".zip") {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("unsupported file type"))
	}
	f.uploads[filename] = string(raw)
	return &domain.Document{ID: "doc-" + filename}, nil
}

func execute(t *testing.T, svc Services, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(svc)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestQueryCommandJoinsArgsAndPrintsResults(t *testing.T) {
	retriever := &retrieverFake{}
	out, err := execute(t, Services{Retriever: retriever}, "query", "-k", "3", "churn", "drivers")
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	if retriever.text != "churn drivers" || retriever.opts.TopK != 3 {
		t.Fatalf("unexpected query %q %+v", retriever.text, retriever.opts)
	}
	if !strings.Contains(out, "[1] q3.md (0.0328)") || !strings.Contains(out, "Churn fell in Q3.") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestQueryCommandRequiresText(t *testing.T) {
	_, err := execute(t, Services{Retriever: &retrieverFake{}}, "query")
	if err == nil || !strings.Contains(err.Error(), "requires at least 1 arg") {
		t.Fatalf("expected argument error, got %v", err)
	}
}

func TestAskCommandUsesConfiguredIterations(t *testing.T) {
	asker := &askerFake{}
	out, err := execute(t, Services{Asker: asker, DefaultMaxIterations: 3}, "ask", "--trace", "-m", "strategic", "Enter", "the", "EU?")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if asker.question != "Enter the EU?" || asker.mode != "strategic" || asker.maxIterations != 3 {
		t.Fatalf("unexpected ask call %+v", asker)
	}
	for _, want := range []string{"[strategic]", "Confidence: HIGH", "Overall risk: MEDIUM", "1. classify: strategic", "- plan.md"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestAskCommandExplicitIterationsWin(t *testing.T) {
	asker := &askerFake{}
	if _, err := execute(t, Services{Asker: asker, DefaultMaxIterations: 3}, "ask", "--max-iterations", "0", "q"); err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if asker.maxIterations != 0 {
		t.Fatalf("expected explicit 0, got %d", asker.maxIterations)
	}
}

func TestIngestCommandReportsPerFileFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "notes.md")
	bad := filepath.Join(dir, "archive.zip")
	for _, p := range []string{good, bad} {
		if err := os.WriteFile(p, []byte("content"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ingestor := &ingestorFake{uploads: map[string]string{}}

	out, err := execute(t, Services{Ingestor: ingestor}, "ingest", good, bad)
	if err == nil {
		t.Fatalf("expected error for unsupported file")
	}
	if ingestor.uploads["notes.md"] != "content" {
		t.Fatalf("expected notes.md upload, got %v", ingestor.uploads)
	}
	if !strings.Contains(out, "queued "+good+" as doc-notes.md") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCommandsFailWithoutServices(t *testing.T) {
	if _, err := execute(t, Services{}, "query", "x"); err == nil {
		t.Fatalf("expected error without retriever")
	}
}
