package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

func newAskCommand(svc Services) *cobra.Command {
	var (
		mode          string
		maxIterations int
		showTrace     bool
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the documents",
		Long: `Answers in insight mode (single retrieval-grounded summary) or strategic mode
(research, knowledge-gap loop, options, risk scoring and a recommendation).
Mode auto lets the model pick.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if svc.Asker == nil {
				return errors.New("question answering not configured")
			}
			if !cmd.Flags().Changed("max-iterations") {
				maxIterations = svc.DefaultMaxIterations
			}
			result, err := svc.Asker.Ask(commandContext(cmd), strings.Join(args, " "), mode, maxIterations)
			if err != nil {
				return fmt.Errorf("ask failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, result)
			}
			printAskResult(cmd, result, showTrace)
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "auto", "auto, insight or strategic")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 2, "knowledge-gap re-query budget")
	cmd.Flags().BoolVar(&showTrace, "trace", false, "print the reasoning trace")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the full result as JSON")
	return cmd
}

func printAskResult(cmd *cobra.Command, result *domain.AskResult, showTrace bool) {
	cmd.Printf("[%s]\n\n%s\n", result.AgentType, strings.TrimSpace(result.Answer))
	if result.ConfidenceLevel != "" {
		cmd.Printf("\nConfidence: %s\n", result.ConfidenceLevel)
	}
	if rs := result.RiskSummary; rs != nil && rs.OverallLevel != "" {
		cmd.Printf("Overall risk: %s\n", rs.OverallLevel)
	}
	if showTrace && len(result.ReasoningTrace) > 0 {
		cmd.Println("\nTrace:")
		for i, entry := range result.ReasoningTrace {
			cmd.Printf("  %d. %s: %s\n", i+1, entry.Node, entry.Summary)
		}
	}
	if len(result.Sources) > 0 {
		cmd.Println("\nSources:")
		seen := make(map[string]struct{})
		for _, s := range result.Sources {
			name := s.SourceFile()
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			cmd.Printf("  - %s\n", name)
		}
	}
}
