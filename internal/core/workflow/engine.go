package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

const DefaultMaxIterations = 2

// Engine executes the strategic decision graph. It holds no per-run state and
// is safe for concurrent Run calls.
type Engine struct {
	retriever     ports.Retriever
	generator     ports.TextGenerator
	logger        *slog.Logger
	maxIterations int
	table         map[Node]transition
}

func NewEngine(retriever ports.Retriever, generator ports.TextGenerator, logger *slog.Logger, maxIterations int) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if maxIterations < 0 || maxIterations > domain.MaxIterationsCeiling {
		maxIterations = DefaultMaxIterations
	}
	e := &Engine{
		retriever:     retriever,
		generator:     generator,
		logger:        logger,
		maxIterations: maxIterations,
	}
	e.table = e.buildTable()
	return e
}

// Run executes the workflow for question. A negative maxIterations selects
// the engine default. Any generation failure aborts the run.
func (e *Engine) Run(ctx context.Context, question string, maxIterations int) (*domain.DecisionResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run decision workflow", errors.New("question is empty"))
	}
	if maxIterations < 0 {
		maxIterations = e.maxIterations
	}
	if maxIterations > domain.MaxIterationsCeiling {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run decision workflow",
			fmt.Errorf("max iterations %d exceeds %d", maxIterations, domain.MaxIterationsCeiling))
	}

	state := domain.NewDecisionState(question, maxIterations)
	node := NodeQuestionAnalyzer
	budget := stepBudget(maxIterations)
	started := time.Now()

	for steps := 0; ; steps++ {
		if steps >= budget {
			return nil, fmt.Errorf("workflow exceeded step budget of %d at %s", budget, node)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("workflow stopped before %s: %w", node, err)
		}

		t, ok := e.table[node]
		if !ok {
			return nil, fmt.Errorf("workflow node %q is not defined", node)
		}

		stepStarted := time.Now()
		patch, err := t.action(ctx, state)
		if err != nil {
			e.logger.Error("workflow_step_failed", "node", node, "error", err)
			return nil, fmt.Errorf("%s: %w", node, err)
		}
		if len(patch.Trace) != 1 {
			return nil, fmt.Errorf("%s: step produced %d trace entries, want 1", node, len(patch.Trace))
		}
		state = state.Apply(patch)
		e.logger.Debug("workflow_step",
			"node", node,
			"iteration", state.IterationCount,
			"duration_ms", time.Since(stepStarted).Milliseconds(),
		)

		if t.next == nil {
			break
		}
		next, edge := t.next(state)
		state = state.Apply(edge)
		node = next
	}

	e.logger.Info("workflow_completed",
		"iterations", state.IterationCount,
		"trace_len", len(state.ReasoningTrace),
		"confidence", state.ConfidenceLevel,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return domain.ResultFromState(state), nil
}

func (e *Engine) generateText(ctx context.Context, node Node, prompt string) (string, error) {
	out, err := e.generator.GenerateText(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", domain.WrapError(domain.ErrGeneration, string(node), errors.New("empty generation output"))
	}
	return strings.TrimSpace(out), nil
}

// generateStructured returns "" with a nil error when the backend answered
// with nothing, so the caller's parse fallback applies.
func (e *Engine) generateStructured(ctx context.Context, prompt string) (string, error) {
	out, err := e.generator.GenerateJSON(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (e *Engine) malformed(node Node, err error) {
	e.logger.Warn("workflow_structured_output_fallback", "node", node, "error", err)
}
