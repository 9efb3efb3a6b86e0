package workflow

import (
	"context"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

// Node names a workflow step. Names double as trace node identifiers.
type Node string

const (
	NodeQuestionAnalyzer   Node = "question_analyzer"
	NodeInternalResearch   Node = "internal_research"
	NodeKnowledgeGap       Node = "knowledge_gap"
	NodeStrategicReasoning Node = "strategic_reasoning"
	NodeRiskAssessment     Node = "risk_assessment"
	NodeDecisionSynthesis  Node = "decision_synthesis"
)

type stepFunc func(ctx context.Context, state domain.DecisionState) (domain.DecisionPatch, error)

// selector picks the next node from the merged state. The returned patch is
// applied on the edge itself and must not carry trace entries.
type selector func(state domain.DecisionState) (Node, domain.DecisionPatch)

type transition struct {
	action stepFunc
	// next is nil for the terminal node.
	next selector
}

func always(node Node) selector {
	return func(domain.DecisionState) (Node, domain.DecisionPatch) {
		return node, domain.DecisionPatch{}
	}
}

// routeAfterKnowledgeGap loops back to research only while context is
// insufficient, refined sub-questions exist and the iteration bound allows it.
func routeAfterKnowledgeGap(s domain.DecisionState) (Node, domain.DecisionPatch) {
	if !s.ContextSufficient && len(s.RefinedSubQuestions) > 0 && s.IterationCount < s.MaxIterations {
		return NodeInternalResearch, domain.DecisionPatch{
			SubQuestions:   s.RefinedSubQuestions,
			IterationCount: domain.Ptr(s.IterationCount + 1),
		}
	}
	return NodeStrategicReasoning, domain.DecisionPatch{}
}

func (e *Engine) buildTable() map[Node]transition {
	return map[Node]transition{
		NodeQuestionAnalyzer:   {action: e.analyzeQuestion, next: always(NodeInternalResearch)},
		NodeInternalResearch:   {action: e.researchInternal, next: always(NodeKnowledgeGap)},
		NodeKnowledgeGap:       {action: e.assessKnowledgeGap, next: routeAfterKnowledgeGap},
		NodeStrategicReasoning: {action: e.reasonStrategically, next: always(NodeRiskAssessment)},
		NodeRiskAssessment:     {action: e.assessRisk, next: always(NodeDecisionSynthesis)},
		NodeDecisionSynthesis:  {action: e.synthesizeDecision},
	}
}

// stepBudget is the longest legal path: four fixed steps plus one
// research/gap pair per allowed pass.
func stepBudget(maxIterations int) int {
	return 4 + 2*(maxIterations+1)
}
