package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

type retrieverStub struct {
	chunks []domain.RetrievedChunk
	err    error
	calls  int
}

func (r *retrieverStub) Query(context.Context, string, domain.QueryOptions) ([]domain.RetrievedChunk, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.chunks, nil
}

// textGeneratorFake replies from a queue; once exhausted it repeats the last reply.
type textGeneratorFake struct {
	replies []string
	errs    []error
	prompts []string
}

func (g *textGeneratorFake) GenerateText(_ context.Context, prompt string) (string, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return "", err
	}
	if len(g.replies) == 0 {
		return "", nil
	}
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return g.replies[i], nil
}

func (g *textGeneratorFake) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return g.GenerateText(ctx, prompt)
}

func sourceChunk(text, file string) domain.RetrievedChunk {
	return domain.RetrievedChunk{Text: text, Metadata: map[string]string{domain.MetaSourceFile: file}, Score: 0.5}
}

func TestInsightAnswerJoinsContext(t *testing.T) {
	retriever := &retrieverStub{chunks: []domain.RetrievedChunk{
		sourceChunk("Revenue grew 12%.", "q3.md"),
		sourceChunk("Churn fell.", "q3.md"),
	}}
	gen := &textGeneratorFake{replies: []string{"Revenue grew and churn fell."}}
	uc := NewInsightUseCase(retriever, gen, nil)

	answer, err := uc.Answer(context.Background(), "How was Q3?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != "Revenue grew and churn fell." {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(answer.Sources))
	}
	if !strings.Contains(gen.prompts[0], "Revenue grew 12%.\n\n---\n\nChurn fell.") {
		t.Fatalf("context not joined with separator:\n%s", gen.prompts[0])
	}
}

func TestInsightAnswerRetriesWithShortPrompt(t *testing.T) {
	long := strings.Repeat("x", 3000)
	retriever := &retrieverStub{chunks: []domain.RetrievedChunk{sourceChunk(long, "big.txt")}}
	gen := &textGeneratorFake{
		errs:    []error{domain.ErrGeneration},
		replies: []string{"", "- short summary"},
	}
	uc := NewInsightUseCase(retriever, gen, nil)

	answer, err := uc.Answer(context.Background(), "Summarize")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != "- short summary" {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
	if len(gen.prompts) != 2 {
		t.Fatalf("expected 2 generation attempts, got %d", len(gen.prompts))
	}
	if strings.Contains(gen.prompts[1], long) {
		t.Fatalf("short prompt must truncate the context")
	}
}

func TestInsightAnswerFallsBackToSourceNames(t *testing.T) {
	retriever := &retrieverStub{chunks: []domain.RetrievedChunk{
		sourceChunk("a", "one.md"),
		sourceChunk("b", "two.pdf"),
		sourceChunk("c", "one.md"),
	}}
	gen := &textGeneratorFake{errs: []error{errors.New("down"), errors.New("down")}}
	uc := NewInsightUseCase(retriever, gen, nil)

	answer, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.Contains(answer.Text, "one.md, two.pdf") {
		t.Fatalf("expected deduplicated source list, got %q", answer.Text)
	}
}

func TestInsightAnswerNoDocuments(t *testing.T) {
	gen := &textGeneratorFake{errs: []error{errors.New("down"), errors.New("down")}}
	uc := NewInsightUseCase(&retrieverStub{}, gen, nil)

	answer, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.HasPrefix(answer.Text, "No relevant documents were found") {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
	if answer.Sources == nil {
		t.Fatalf("sources must be an empty list, not nil")
	}
	if !strings.Contains(gen.prompts[0], noDocumentsContext) {
		t.Fatalf("expected placeholder context in prompt")
	}
}

func TestInsightAnswerRetrievalFailureDegrades(t *testing.T) {
	retriever := &retrieverStub{err: domain.ErrTemporary}
	gen := &textGeneratorFake{replies: []string{"nothing internal"}}
	uc := NewInsightUseCase(retriever, gen, nil)

	answer, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != "nothing internal" || len(answer.Sources) != 0 {
		t.Fatalf("unexpected answer %+v", answer)
	}
}

func TestStripSourceArtifacts(t *testing.T) {
	in := "Summary from internal documents\n\nSource 1 (relevance: 82%)\nRevenue grew (relevance: 0.82).\n\n\n\nDone."
	got := stripSourceArtifacts(in)
	want := "Revenue grew.\n\nDone."
	if got != want {
		t.Fatalf("stripSourceArtifacts() = %q, want %q", got, want)
	}
	if stripSourceArtifacts("  \n ") != "" {
		t.Fatalf("blank input must stay blank")
	}
}
