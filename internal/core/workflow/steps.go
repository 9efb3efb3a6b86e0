package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

const noInternalContext = "No relevant internal documents found."

func (e *Engine) analyzeQuestion(ctx context.Context, s domain.DecisionState) (domain.DecisionPatch, error) {
	raw, err := e.generateStructured(ctx, buildAnalyzerPrompt(s.Question))
	if err != nil {
		return domain.DecisionPatch{}, err
	}
	analysis, err := parseQuestionAnalysis(raw, s.Question)
	if err != nil {
		e.malformed(NodeQuestionAnalyzer, err)
	}

	return domain.DecisionPatch{
		Classification: domain.Ptr(analysis.Classification),
		Intent:         domain.Ptr(analysis.Intent),
		SubQuestions:   analysis.SubQuestions,
		Trace: []domain.TraceEntry{{
			Node:    string(NodeQuestionAnalyzer),
			Summary: "Analyzing question and generating sub-questions",
			Detail:  fmt.Sprintf("classification=%s, %d sub-questions", analysis.Classification, len(analysis.SubQuestions)),
		}},
	}, nil
}

func (e *Engine) researchInternal(ctx context.Context, s domain.DecisionState) (domain.DecisionPatch, error) {
	queries := distinctQueries(s.Question, s.SubQuestions)
	sources := make([]domain.RetrievedChunk, 0, len(queries)*5)
	seen := make(map[string]struct{})
	failed := 0

	for _, q := range queries {
		hits, err := e.retriever.Query(ctx, q, domain.QueryOptions{})
		if err != nil {
			failed++
			e.logger.Warn("workflow_research_query_failed", "query", q, "error", err)
			continue
		}
		for _, hit := range hits {
			key := normalizeKey(hit.Text) + "\x00" + hit.SourceFile()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			sources = append(sources, hit)
		}
	}

	summary := "Retrieving internal company documents"
	if s.IterationCount > 0 {
		summary = fmt.Sprintf("Re-querying internal documents (pass %d)", s.IterationCount+1)
	}
	detail := fmt.Sprintf("%d queries, %d unique sources", len(queries), len(sources))
	if failed > 0 {
		detail += fmt.Sprintf(", %d queries degraded", failed)
	}

	return domain.DecisionPatch{
		InternalContext:  domain.Ptr(buildInternalContext(sources)),
		RetrievedSources: sources,
		Trace: []domain.TraceEntry{{
			Node:    string(NodeInternalResearch),
			Summary: summary,
			Detail:  detail,
		}},
	}, nil
}

func (e *Engine) assessKnowledgeGap(ctx context.Context, s domain.DecisionState) (domain.DecisionPatch, error) {
	raw, err := e.generateStructured(ctx, buildKnowledgeGapPrompt(s))
	if err != nil {
		return domain.DecisionPatch{}, err
	}
	gap, err := parseKnowledgeGap(raw)
	if err != nil {
		e.malformed(NodeKnowledgeGap, err)
	}

	return domain.DecisionPatch{
		KnowledgeGaps:       gap.Gaps,
		Assumptions:         gap.Assumptions,
		ContextSufficient:   domain.Ptr(gap.Sufficient),
		RefinedSubQuestions: gap.Refined,
		Trace: []domain.TraceEntry{{
			Node:    string(NodeKnowledgeGap),
			Summary: "Assessing knowledge gaps and assumptions",
			Detail: fmt.Sprintf("sufficient=%t, %d gaps, %d refined sub-questions",
				gap.Sufficient, len(gap.Gaps), len(gap.Refined)),
		}},
	}, nil
}

func (e *Engine) reasonStrategically(ctx context.Context, s domain.DecisionState) (domain.DecisionPatch, error) {
	options, err := e.generateText(ctx, NodeStrategicReasoning, buildStrategicPrompt(s))
	if err != nil {
		return domain.DecisionPatch{}, err
	}
	return domain.DecisionPatch{
		StrategicOptions: domain.Ptr(options),
		Trace: []domain.TraceEntry{{
			Node:    string(NodeStrategicReasoning),
			Summary: "Generating strategic options with trade-offs",
			Detail:  fmt.Sprintf("%d options drafted", countOptionHeaders(options)),
		}},
	}, nil
}

func (e *Engine) assessRisk(ctx context.Context, s domain.DecisionState) (domain.DecisionPatch, error) {
	analysis, err := e.generateText(ctx, NodeRiskAssessment, buildRiskPrompt(s))
	if err != nil {
		return domain.DecisionPatch{}, err
	}
	parsed := ParseRiskAssessment(analysis)
	if headers := countOptionHeaders(analysis); len(parsed.Options) < headers || headers == 0 {
		e.logger.Debug("risk_assessment_partially_parsed",
			"option_headers", headers, "options_parsed", len(parsed.Options), "chars", len(analysis))
	}

	return domain.DecisionPatch{
		RiskAnalysis: domain.Ptr(analysis),
		RiskScores:   parsed.Scores,
		RiskLevels:   parsed.Levels,
		RiskOptions:  parsed.Options,
		Trace: []domain.TraceEntry{{
			Node:    string(NodeRiskAssessment),
			Summary: "Assessing risks per strategic option",
			Detail:  fmt.Sprintf("%d options scored", len(parsed.Options)),
		}},
	}, nil
}

func (e *Engine) synthesizeDecision(ctx context.Context, s domain.DecisionState) (domain.DecisionPatch, error) {
	answer, err := e.generateText(ctx, NodeDecisionSynthesis, buildSynthesisPrompt(s))
	if err != nil {
		return domain.DecisionPatch{}, err
	}
	confidence := ExtractConfidence(answer)
	return domain.DecisionPatch{
		FinalAnswer:     domain.Ptr(answer),
		ConfidenceLevel: domain.Ptr(confidence),
		Trace: []domain.TraceEntry{{
			Node:    string(NodeDecisionSynthesis),
			Summary: "Synthesizing final recommendation",
			Detail:  "confidence=" + confidence,
		}},
	}, nil
}

func distinctQueries(question string, subQuestions []string) []string {
	out := make([]string, 0, len(subQuestions)+1)
	seen := make(map[string]struct{}, len(subQuestions)+1)
	for _, q := range append([]string{question}, subQuestions...) {
		q = strings.TrimSpace(q)
		key := strings.ToLower(normalizeKey(q))
		if q == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

func buildInternalContext(sources []domain.RetrievedChunk) string {
	if len(sources) == 0 {
		return noInternalContext
	}
	parts := make([]string, 0, len(sources))
	for i, src := range sources {
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, src.Text))
	}
	return strings.Join(parts, "\n\n")
}

func normalizeKey(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
