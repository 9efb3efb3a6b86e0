package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

func newQueryCommand(svc Services) *cobra.Command {
	var (
		topK         int
		semanticOnly bool
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Search the document corpus",
		Long: `Runs hybrid retrieval: semantic and BM25 keyword rankings fused with
reciprocal rank fusion.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if svc.Retriever == nil {
				return errors.New("retrieval service not configured")
			}
			opts := domain.QueryOptions{TopK: topK, SemanticOnly: semanticOnly}
			results, err := svc.Retriever.Query(commandContext(cmd), strings.Join(args, " "), opts)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, results)
			}
			printResults(cmd, results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "maximum number of results (0 = configured default)")
	cmd.Flags().BoolVar(&semanticOnly, "semantic-only", false, "skip the keyword ranking")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func printResults(cmd *cobra.Command, results []domain.RetrievedChunk) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		source := r.SourceFile()
		if source == "" {
			source = "unknown"
		}
		cmd.Printf("[%d] %s (%.4f)\n", i+1, source, r.Score)
		cmd.Printf("    %s\n", snippet(r.Text, 240))
	}
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
