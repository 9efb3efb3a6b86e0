package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

const maxSubQuestions = 5

type questionAnalysis struct {
	Classification string   `json:"classification"`
	Intent         string   `json:"intent"`
	SubQuestions   []string `json:"sub_questions"`
}

func defaultQuestionAnalysis(question string) questionAnalysis {
	return questionAnalysis{
		Classification: domain.ClassificationStrategic,
		Intent:         question,
		SubQuestions:   []string{question},
	}
}

// parseQuestionAnalysis always returns a usable analysis; the error reports
// that the defaults were substituted.
func parseQuestionAnalysis(raw, question string) (questionAnalysis, error) {
	var parsed questionAnalysis
	if err := decodeJSONObject(raw, &parsed); err != nil {
		return defaultQuestionAnalysis(question), domain.WrapError(domain.ErrMalformedOutput, "parse question analysis", err)
	}

	out := questionAnalysis{
		Classification: strings.ToLower(strings.TrimSpace(parsed.Classification)),
		Intent:         strings.TrimSpace(parsed.Intent),
		SubQuestions:   cleanList(parsed.SubQuestions, maxSubQuestions),
	}
	if out.Classification != domain.ClassificationFactual {
		out.Classification = domain.ClassificationStrategic
	}
	if out.Intent == "" {
		out.Intent = question
	}
	if len(out.SubQuestions) == 0 {
		out.SubQuestions = []string{question}
	}
	return out, nil
}

type knowledgeGapResult struct {
	Gaps        []string
	Assumptions []string
	Sufficient  bool
	Refined     []string
}

// flexibleBool accepts JSON booleans and the strings yes/no/true/false.
type flexibleBool bool

func (b *flexibleBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexibleBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("context_sufficient: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true":
		*b = true
	case "no", "false":
		*b = false
	default:
		return fmt.Errorf("context_sufficient: unsupported value %q", s)
	}
	return nil
}

// parseKnowledgeGap fails open: unparseable output reports sufficient context.
func parseKnowledgeGap(raw string) (knowledgeGapResult, error) {
	var parsed struct {
		KnowledgeGaps       []string      `json:"knowledge_gaps"`
		Assumptions         []string      `json:"assumptions"`
		ContextSufficient   *flexibleBool `json:"context_sufficient"`
		RefinedSubQuestions []string      `json:"refined_sub_questions"`
	}
	if err := decodeJSONObject(raw, &parsed); err != nil {
		return knowledgeGapResult{
			Gaps:        []string{},
			Assumptions: []string{},
			Sufficient:  true,
			Refined:     []string{},
		}, domain.WrapError(domain.ErrMalformedOutput, "parse knowledge gap", err)
	}

	out := knowledgeGapResult{
		Gaps:        cleanList(parsed.KnowledgeGaps, 0),
		Assumptions: cleanList(parsed.Assumptions, 0),
		Sufficient:  true,
		Refined:     cleanList(parsed.RefinedSubQuestions, maxSubQuestions),
	}
	if parsed.ContextSufficient != nil {
		out.Sufficient = bool(*parsed.ContextSufficient)
	}
	return out, nil
}

func decodeJSONObject(raw string, out any) error {
	payload, err := extractJSONObject(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}
	return nil
}

// extractJSONObject strips code fences and surrounding prose from a generated JSON object.
func extractJSONObject(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", errors.New("empty output")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", errors.New("no json object found")
	}
	return text[start : end+1], nil
}

// cleanList trims entries and drops blanks. limit <= 0 keeps everything.
// The result is never nil.
func cleanList(items []string, limit int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Risk assessment grammar, matched case-insensitively line by line:
//
//	header: "#".."######" Option <id> (":" | "." | "-") <name>
//	score:  score [":" | "="] <number>        clamped to [1, 10]
//	level:  risk level [":" | "="] LOW|MEDIUM|HIGH
//
// Score and level tokens belong to the most recent header and may appear on
// the header line itself. The first score and level per option win.
var (
	optionHeaderRe = regexp.MustCompile(`(?i)^\s*#{1,6}\s*option\s+[a-z0-9]+\s*[:.\-]\s*(.+?)\s*$`)
	riskScoreRe    = regexp.MustCompile(`(?i)score\s*[:=]?\s*(\d+(?:\.\d+)?)`)
	riskLevelRe    = regexp.MustCompile(`(?i)risk\s+level\s*[:=]?\s*\**\s*(low|medium|high)\b`)
	confidenceRe   = regexp.MustCompile(`(?i)confidence(?:\s*level)?\W*(high|medium|low)\b`)
)

// RiskAssessment is the structured view of a free-form risk analysis.
type RiskAssessment struct {
	// Options lists options that yielded a score or a level, in order of appearance.
	Options []string
	Scores  map[string]float64
	Levels  map[string]string
}

// ParseRiskAssessment never fails: unmatched text yields empty maps.
func ParseRiskAssessment(text string) RiskAssessment {
	out := RiskAssessment{
		Options: []string{},
		Scores:  map[string]float64{},
		Levels:  map[string]string{},
	}

	var option string
	listed := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		if m := optionHeaderRe.FindStringSubmatch(line); m != nil {
			option = strings.Trim(m[1], "*_ \t")
		}
		if option == "" {
			continue
		}

		if _, ok := out.Scores[option]; !ok {
			if m := riskScoreRe.FindStringSubmatch(line); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					out.Scores[option] = max(1, min(10, v))
				}
			}
		}
		if _, ok := out.Levels[option]; !ok {
			if m := riskLevelRe.FindStringSubmatch(line); m != nil {
				out.Levels[option] = strings.ToUpper(m[1])
			}
		}

		_, scored := out.Scores[option]
		_, leveled := out.Levels[option]
		if (scored || leveled) && !listed[option] {
			listed[option] = true
			out.Options = append(out.Options, option)
		}
	}
	return out
}

// ExtractConfidence returns HIGH, MEDIUM or LOW from a "confidence" label in
// text, or MEDIUM when no label is present.
func ExtractConfidence(text string) string {
	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	return domain.ConfidenceMedium
}

func countOptionHeaders(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if optionHeaderRe.MatchString(line) {
			n++
		}
	}
	return n
}
