package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

const (
	ModeAuto      = "auto"
	ModeInsight   = "insight"
	ModeStrategic = "strategic"
)

const (
	emptyQuestionAnswer   = "Please provide a question."
	strategicFailedAnswer = "The strategic analysis could not be completed due to an error. Please try again."
)

// AskUseCase routes a question to the insight agent or the strategic workflow.
type AskUseCase struct {
	insight    *InsightUseCase
	workflow   ports.DecisionWorkflow
	classifier ports.TextGenerator
	// iterationLimit caps caller-supplied budgets; zero means no limit beyond the domain ceiling.
	iterationLimit int
	logger         *slog.Logger
	observer       ports.AskObserver
}

func NewAskUseCase(
	insight *InsightUseCase,
	workflow ports.DecisionWorkflow,
	classifier ports.TextGenerator,
	iterationLimit int,
	logger *slog.Logger,
	observer ports.AskObserver,
) *AskUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopAskObserver{}
	}
	return &AskUseCase{
		insight:        insight,
		workflow:       workflow,
		classifier:     classifier,
		iterationLimit: iterationLimit,
		logger:         logger,
		observer:       observer,
	}
}

func (uc *AskUseCase) Ask(ctx context.Context, question, mode string, maxIterations int) (*domain.AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return &domain.AskResult{
			AgentType: domain.AgentInsight,
			Answer:    emptyQuestionAnswer,
			Sources:   []domain.RetrievedChunk{},
		}, nil
	}

	if err := uc.checkIterations(maxIterations); err != nil {
		return nil, err
	}

	agent, err := uc.route(ctx, question, mode)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	switch agent {
	case domain.AgentStrategic:
		result, decision := uc.askStrategic(ctx, question, maxIterations)
		if decision == nil {
			uc.observer.ObserveAsk(string(agent), "failed", 0, time.Since(started))
		} else {
			uc.observer.ObserveAsk(string(agent), "ok", decision.Iterations, time.Since(started))
		}
		return result, nil
	default:
		answer, err := uc.insight.Answer(ctx, question)
		if err != nil {
			uc.observer.ObserveAsk(string(agent), "failed", 0, time.Since(started))
			return nil, err
		}
		uc.observer.ObserveAsk(string(agent), "ok", 0, time.Since(started))
		return &domain.AskResult{
			AgentType: domain.AgentInsight,
			Answer:    answer.Text,
			Sources:   answer.Sources,
		}, nil
	}
}

func (uc *AskUseCase) checkIterations(maxIterations int) error {
	limit := domain.MaxIterationsCeiling
	if uc.iterationLimit > 0 {
		limit = min(limit, uc.iterationLimit)
	}
	if maxIterations > limit {
		return domain.WrapError(domain.ErrInvalidInput, "ask",
			fmt.Errorf("max_iterations %d exceeds the limit of %d", maxIterations, limit))
	}
	return nil
}

func (uc *AskUseCase) route(ctx context.Context, question, mode string) (domain.AgentType, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeInsight:
		return domain.AgentInsight, nil
	case ModeStrategic:
		return domain.AgentStrategic, nil
	case "", ModeAuto:
		return uc.classify(ctx, question), nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("unknown mode %q", mode))
	}
}

func (uc *AskUseCase) classify(ctx context.Context, question string) domain.AgentType {
	reply, err := uc.classifier.GenerateText(ctx, buildRouterPrompt(question))
	if err != nil {
		uc.logger.Warn("ask_classification_failed", "error", err, "fallback", ModeStrategic)
		return domain.AgentStrategic
	}
	if strings.Contains(strings.ToLower(reply), ModeStrategic) {
		return domain.AgentStrategic
	}
	return domain.AgentInsight
}

// askStrategic never fails; a workflow error becomes a generic answer and a nil decision.
func (uc *AskUseCase) askStrategic(ctx context.Context, question string, maxIterations int) (*domain.AskResult, *domain.DecisionResult) {
	result, err := uc.workflow.Run(ctx, question, maxIterations)
	if err != nil {
		uc.logger.Error("strategic_workflow_failed", "error", err)
		return &domain.AskResult{
			AgentType: domain.AgentStrategic,
			Answer:    strategicFailedAnswer,
			Sources:   []domain.RetrievedChunk{},
		}, nil
	}

	sources := result.RetrievedSources
	if sources == nil {
		sources = []domain.RetrievedChunk{}
	}
	return &domain.AskResult{
		AgentType:       domain.AgentStrategic,
		Answer:          result.FinalAnswer,
		Sources:         sources,
		ReasoningTrace:  result.ReasoningTrace,
		RiskSummary:     result.RiskSummary(),
		ConfidenceLevel: result.ConfidenceLevel,
	}, result
}

func buildRouterPrompt(question string) string {
	return fmt.Sprintf(`Classify the user question into exactly one category.

insight: factual lookups, summaries, "what does the document say", data retrieval.
strategic: decisions, trade-offs, "should we", planning, comparing options, risk.

Reply with a single word: insight or strategic.

Question: %s`, question)
}

type nopAskObserver struct{}

func (nopAskObserver) ObserveAsk(string, string, int, time.Duration) {}
