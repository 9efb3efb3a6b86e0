package workflow

import (
	"reflect"
	"testing"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

func TestRouteAfterKnowledgeGapLoopsWithinBound(t *testing.T) {
	s := domain.DecisionState{
		ContextSufficient:   false,
		RefinedSubQuestions: []string{"x"},
		SubQuestions:        []string{"old"},
		IterationCount:      1,
		MaxIterations:       2,
	}

	next, edge := routeAfterKnowledgeGap(s)
	if next != NodeInternalResearch {
		t.Fatalf("expected loop back to research, got %s", next)
	}
	looped := s.Apply(edge)
	if !reflect.DeepEqual(looped.SubQuestions, []string{"x"}) || looped.IterationCount != 2 {
		t.Fatalf("expected sub-questions replaced and count incremented, got %v / %d", looped.SubQuestions, looped.IterationCount)
	}
	if len(edge.Trace) != 0 {
		t.Fatalf("edges must not write trace entries")
	}

	again, _ := routeAfterKnowledgeGap(looped)
	if again != NodeStrategicReasoning {
		t.Fatalf("expected progression once the bound is reached, got %s", again)
	}
}

func TestRouteAfterKnowledgeGapProceeds(t *testing.T) {
	cases := map[string]domain.DecisionState{
		"sufficient":      {ContextSufficient: true, RefinedSubQuestions: []string{"x"}, MaxIterations: 2},
		"no refined":      {ContextSufficient: false, RefinedSubQuestions: []string{}, MaxIterations: 2},
		"bound reached":   {ContextSufficient: false, RefinedSubQuestions: []string{"x"}, IterationCount: 2, MaxIterations: 2},
		"zero iterations": {ContextSufficient: false, RefinedSubQuestions: []string{"x"}, MaxIterations: 0},
	}
	for name, s := range cases {
		next, edge := routeAfterKnowledgeGap(s)
		if next != NodeStrategicReasoning {
			t.Fatalf("%s: expected strategic reasoning, got %s", name, next)
		}
		if edge.IterationCount != nil || edge.SubQuestions != nil {
			t.Fatalf("%s: expected empty edge patch, got %+v", name, edge)
		}
	}
}

func TestTableIsClosed(t *testing.T) {
	engine := NewEngine(&retrieverFake{}, newScriptedGenerator(), nil, DefaultMaxIterations)
	terminal := 0
	for node, tr := range engine.table {
		if tr.action == nil {
			t.Fatalf("%s has no action", node)
		}
		if tr.next == nil {
			terminal++
			if node != NodeDecisionSynthesis {
				t.Fatalf("unexpected terminal node %s", node)
			}
			continue
		}
		next, _ := tr.next(domain.DecisionState{ContextSufficient: true})
		if _, ok := engine.table[next]; !ok {
			t.Fatalf("%s routes to unknown node %s", node, next)
		}
	}
	if terminal != 1 {
		t.Fatalf("expected exactly one terminal node, got %d", terminal)
	}
}

func TestStepBudgetCoversLongestPath(t *testing.T) {
	if got := stepBudget(2); got != 10 {
		t.Fatalf("expected budget 10 for two iterations, got %d", got)
	}
}
