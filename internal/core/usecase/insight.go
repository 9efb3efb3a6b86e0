package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

const (
	noDocumentsContext = "No relevant internal documents were found for this question."
	shortContextChars  = 2000
)

// InsightUseCase produces a single-pass, retrieval-grounded summary.
type InsightUseCase struct {
	retriever ports.Retriever
	generator ports.TextGenerator
	logger    *slog.Logger
}

func NewInsightUseCase(retriever ports.Retriever, generator ports.TextGenerator, logger *slog.Logger) *InsightUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightUseCase{
		retriever: retriever,
		generator: generator,
		logger:    logger,
	}
}

func (uc *InsightUseCase) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	sources, err := uc.retriever.Query(ctx, question, domain.QueryOptions{})
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return nil, err
		}
		uc.logger.Warn("insight_retrieval_failed", "error", err)
		sources = nil
	}
	if sources == nil {
		sources = []domain.RetrievedChunk{}
	}

	contextText := joinSourceTexts(sources)
	answer, err := uc.generator.GenerateText(ctx, buildInsightPrompt(contextText, question))
	if err != nil || strings.TrimSpace(answer) == "" {
		uc.logger.Warn("insight_generation_failed", "error", err, "retry", "short_prompt")
		answer, err = uc.generator.GenerateText(ctx, buildShortSummaryPrompt(contextText, question))
		if err != nil {
			uc.logger.Error("insight_short_generation_failed", "error", err)
			answer = ""
		}
	}

	answer = stripSourceArtifacts(answer)
	if answer == "" {
		answer = answerFromSourceNames(sources)
	}
	return &domain.Answer{Text: answer, Sources: sources}, nil
}

func joinSourceTexts(sources []domain.RetrievedChunk) string {
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		if text := strings.TrimSpace(src.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return noDocumentsContext
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func buildInsightPrompt(contextText, question string) string {
	return fmt.Sprintf(`You are an analyst answering from internal company documents only.
Answer concisely and ground every statement in the context. If the context does
not contain the answer, say so directly. Do not list sources or relevance scores.

Context:
%s

Question:
%s
`, contextText, question)
}

func buildShortSummaryPrompt(contextText, question string) string {
	runes := []rune(contextText)
	if len(runes) > shortContextChars {
		contextText = strings.TrimRight(string(runes[:shortContextChars]), " \n") + "..."
	}
	return fmt.Sprintf(`Summarize the following for an executive in 3-5 bullet points. Be concise. Do not copy long passages.

Text:
%s

Question: %s

Bullet-point summary:`, contextText, question)
}

var (
	sourceLineRe    = regexp.MustCompile(`(?im)^\s*Source\s+\d+\s*(?:\([^)]*relevance[^)]*\))?\s*$\n?`)
	relevanceNoteRe = regexp.MustCompile(`(?i)\s*\(relevance:\s*[\d.]+%?\)`)
	boilerplateRes  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Summary from internal documents\s*\n+`),
		regexp.MustCompile(`(?i)The following relevant information was found[^\n]*\n+`),
		regexp.MustCompile(`(?i)Answer\s*\(from internal documents\)\s*\n+`),
		regexp.MustCompile(`(?i)Based on the retrieved company documents[^\n]*\n+`),
	}
	extraBlankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// stripSourceArtifacts removes source labels and boilerplate the model copies from its context.
func stripSourceArtifacts(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	text = sourceLineRe.ReplaceAllString(text, "")
	text = relevanceNoteRe.ReplaceAllString(text, "")
	for _, re := range boilerplateRes {
		text = re.ReplaceAllString(text, "")
	}
	text = extraBlankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func answerFromSourceNames(sources []domain.RetrievedChunk) string {
	if len(sources) == 0 {
		return "No relevant documents were found for this question. " +
			"Try rephrasing or adding more documents to the knowledge base."
	}
	names := make([]string, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		name := src.SourceFile()
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	files := "the files listed under sources"
	if len(names) > 0 {
		files = strings.Join(names, ", ")
	}
	return "A written summary could not be generated because the language model is unavailable. " +
		"Relevant data was found in " + files + "."
}
