package workflow

import (
	"fmt"
	"strings"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

const (
	analyzerRole  = "You are a strategy analyst preparing research."
	gapRole       = "You are a research analyst checking evidence coverage."
	strategyRole  = "You are a strategy consultant."
	riskRole      = "You are a risk analyst."
	synthesisRole = "You are a decision advisor writing for an executive."
)

func buildAnalyzerPrompt(question string) string {
	return fmt.Sprintf(`%s
Classify the question as "factual" or "strategic", state the underlying intent,
and write 2-5 focused sub-questions that internal documents could answer.
Return ONLY a JSON object:
{"classification":"strategic","intent":"...","sub_questions":["...","..."]}

Question:
%s
`, analyzerRole, question)
}

func buildKnowledgeGapPrompt(s domain.DecisionState) string {
	return fmt.Sprintf(`%s
Given the question and the internal context, decide:
1. What information is missing or incomplete?
2. Which assumptions would be needed?
3. Is the context sufficient to propose strategic options?
If it is not, propose refined sub-questions for another retrieval pass.
Return ONLY a JSON object:
{"knowledge_gaps":["..."],"assumptions":["..."],"context_sufficient":true,"refined_sub_questions":["..."]}

Question: %s
Intent: %s

Internal context:
%s
`, gapRole, s.Question, s.Intent, truncateRunes(s.InternalContext, 4000))
}

func buildStrategicPrompt(s domain.DecisionState) string {
	return fmt.Sprintf(`%s
Propose 2-4 distinct strategic options for the question. For each option give a
short description, its trade-offs and the evidence from context it relies on.
Use one section per option with the header "## Option A: <name>", "## Option B: <name>" and so on.

Question: %s

Known gaps: %s
Assumptions: %s

Internal context:
%s
`, strategyRole, s.Question, joinOrNone(s.KnowledgeGaps), joinOrNone(s.Assumptions), truncateRunes(s.InternalContext, 4000))
}

func buildRiskPrompt(s domain.DecisionState) string {
	return fmt.Sprintf(`%s
For each strategic option identify operational, financial, reputational and
strategic risks. Assign a risk level and a score from 1 (low) to 10 (high).
Use exactly this layout per option:
## Option A: <name>
- Risk level: LOW | MEDIUM | HIGH (score: 1-10)
- Risks: bullet list

Strategic options:
%s

Company context:
%s
`, riskRole, truncateRunes(s.StrategicOptions, 5000), truncateRunes(s.InternalContext, 3000))
}

func buildSynthesisPrompt(s domain.DecisionState) string {
	return fmt.Sprintf(`%s
Write the final recommendation with these sections: Executive Summary, Options
Considered, Risk Overview, Recommendation, Assumptions, Confidence Level.
End with a line "Confidence Level: HIGH", "Confidence Level: MEDIUM" or "Confidence Level: LOW".

Question: %s

Strategic options:
%s

Risk analysis:
%s

Assumptions: %s
`, synthesisRole, s.Question, truncateRunes(s.StrategicOptions, 5000), truncateRunes(s.RiskAnalysis, 3000), joinOrNone(s.Assumptions))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, "; ")
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
