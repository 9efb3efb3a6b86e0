package domain

import (
	"maps"
	"slices"
)

const (
	ClassificationStrategic = "strategic"
	ClassificationFactual   = "factual"
)

// MaxIterationsCeiling bounds the knowledge-gap re-query budget of a single run.
const MaxIterationsCeiling = 20

const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// TraceEntry is one human-readable record of a workflow step.
type TraceEntry struct {
	Node    string `json:"node"`
	Summary string `json:"summary"`
	Detail  string `json:"detail,omitempty"`
}

// DecisionState is the running state of a strategic workflow invocation.
// Values are treated as immutable: steps return a DecisionPatch and the
// engine derives the next state with Apply.
type DecisionState struct {
	Question            string
	Classification      string
	Intent              string
	SubQuestions        []string
	InternalContext     string
	RetrievedSources    []RetrievedChunk
	KnowledgeGaps       []string
	Assumptions         []string
	ContextSufficient   bool
	RefinedSubQuestions []string
	StrategicOptions    string
	RiskAnalysis        string
	RiskScores          map[string]float64
	RiskLevels          map[string]string
	RiskOptions         []string
	FinalAnswer         string
	ConfidenceLevel     string
	IterationCount      int
	MaxIterations       int
	ReasoningTrace      []TraceEntry
}

func NewDecisionState(question string, maxIterations int) DecisionState {
	return DecisionState{
		Question:      question,
		MaxIterations: maxIterations,
	}
}

// DecisionPatch is a partial state update. Nil pointers, nil slices and nil
// maps leave the corresponding field untouched; a non-nil empty slice clears it.
// Trace entries are appended, never substituted.
type DecisionPatch struct {
	Classification      *string
	Intent              *string
	SubQuestions        []string
	InternalContext     *string
	RetrievedSources    []RetrievedChunk
	KnowledgeGaps       []string
	Assumptions         []string
	ContextSufficient   *bool
	RefinedSubQuestions []string
	StrategicOptions    *string
	RiskAnalysis        *string
	RiskScores          map[string]float64
	RiskLevels          map[string]string
	RiskOptions         []string
	FinalAnswer         *string
	ConfidenceLevel     *string
	IterationCount      *int
	Trace               []TraceEntry
}

// Apply overlays p onto s and returns the merged state. s is left unchanged.
func (s DecisionState) Apply(p DecisionPatch) DecisionState {
	next := s

	overlay(&next.Classification, p.Classification)
	overlay(&next.Intent, p.Intent)
	overlay(&next.InternalContext, p.InternalContext)
	overlay(&next.ContextSufficient, p.ContextSufficient)
	overlay(&next.StrategicOptions, p.StrategicOptions)
	overlay(&next.RiskAnalysis, p.RiskAnalysis)
	overlay(&next.FinalAnswer, p.FinalAnswer)
	overlay(&next.ConfidenceLevel, p.ConfidenceLevel)
	overlay(&next.IterationCount, p.IterationCount)

	if p.SubQuestions != nil {
		next.SubQuestions = slices.Clone(p.SubQuestions)
	}
	if p.RetrievedSources != nil {
		next.RetrievedSources = slices.Clone(p.RetrievedSources)
	}
	if p.KnowledgeGaps != nil {
		next.KnowledgeGaps = slices.Clone(p.KnowledgeGaps)
	}
	if p.Assumptions != nil {
		next.Assumptions = slices.Clone(p.Assumptions)
	}
	if p.RefinedSubQuestions != nil {
		next.RefinedSubQuestions = slices.Clone(p.RefinedSubQuestions)
	}
	if p.RiskOptions != nil {
		next.RiskOptions = slices.Clone(p.RiskOptions)
	}
	if p.RiskScores != nil {
		next.RiskScores = maps.Clone(p.RiskScores)
	}
	if p.RiskLevels != nil {
		next.RiskLevels = maps.Clone(p.RiskLevels)
	}

	// Clip forces a fresh backing array so sibling states never share appended entries.
	next.ReasoningTrace = append(slices.Clip(s.ReasoningTrace), p.Trace...)
	return next
}

func overlay[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Ptr returns a pointer to v. Used to build patches.
func Ptr[T any](v T) *T {
	return &v
}

type RiskOption struct {
	Name  string   `json:"name,omitempty"`
	Score *float64 `json:"score,omitempty"`
	Level string   `json:"level,omitempty"`
	// Summary is set only on the placeholder entry used when no option could be parsed.
	Summary string `json:"summary,omitempty"`
}

type RiskSummary struct {
	Options      []RiskOption       `json:"options"`
	OverallLevel string             `json:"overall_level,omitempty"`
	Scores       map[string]float64 `json:"scores,omitempty"`
}

// DecisionResult is the outcome of a completed strategic workflow.
type DecisionResult struct {
	FinalAnswer      string             `json:"final_answer"`
	ConfidenceLevel  string             `json:"confidence_level"`
	Classification   string             `json:"classification"`
	ReasoningTrace   []TraceEntry       `json:"reasoning_trace"`
	RiskScores       map[string]float64 `json:"risk_scores"`
	RiskLevels       map[string]string  `json:"risk_levels"`
	RiskOptions      []string           `json:"risk_options"`
	RiskAnalysis     string             `json:"risk_analysis"`
	StrategicOptions string             `json:"strategic_options"`
	KnowledgeGaps    []string           `json:"knowledge_gaps"`
	Assumptions      []string           `json:"assumptions"`
	RetrievedSources []RetrievedChunk   `json:"retrieved_sources"`
	Iterations       int                `json:"iterations"`
}

func ResultFromState(s DecisionState) *DecisionResult {
	return &DecisionResult{
		FinalAnswer:      s.FinalAnswer,
		ConfidenceLevel:  s.ConfidenceLevel,
		Classification:   s.Classification,
		ReasoningTrace:   slices.Clone(s.ReasoningTrace),
		RiskScores:       maps.Clone(s.RiskScores),
		RiskLevels:       maps.Clone(s.RiskLevels),
		RiskOptions:      slices.Clone(s.RiskOptions),
		RiskAnalysis:     s.RiskAnalysis,
		StrategicOptions: s.StrategicOptions,
		KnowledgeGaps:    slices.Clone(s.KnowledgeGaps),
		Assumptions:      slices.Clone(s.Assumptions),
		RetrievedSources: slices.Clone(s.RetrievedSources),
		Iterations:       s.IterationCount,
	}
}

// RiskSummary builds the per-option risk view in order of appearance.
func (r *DecisionResult) RiskSummary() *RiskSummary {
	summary := &RiskSummary{Options: make([]RiskOption, 0, len(r.RiskOptions))}
	for _, name := range r.RiskOptions {
		opt := RiskOption{Name: name, Level: r.RiskLevels[name]}
		if score, ok := r.RiskScores[name]; ok {
			opt.Score = Ptr(score)
		}
		if summary.OverallLevel == "" && opt.Level != "" {
			summary.OverallLevel = opt.Level
		}
		summary.Options = append(summary.Options, opt)
	}
	if len(summary.Options) == 0 {
		summary.Options = append(summary.Options, RiskOption{Summary: r.RiskAnalysis})
	}
	if len(r.RiskScores) > 0 {
		summary.Scores = maps.Clone(r.RiskScores)
	}
	return summary
}

type AgentType string

const (
	AgentInsight   AgentType = "insight"
	AgentStrategic AgentType = "strategic"
)

// AskResult is the user-facing answer for either mode.
type AskResult struct {
	AgentType       AgentType        `json:"agent_type"`
	Answer          string           `json:"answer"`
	Sources         []RetrievedChunk `json:"sources"`
	ReasoningTrace  []TraceEntry     `json:"reasoning_trace,omitempty"`
	RiskSummary     *RiskSummary     `json:"risk_summary,omitempty"`
	ConfidenceLevel string           `json:"confidence_level,omitempty"`
}
