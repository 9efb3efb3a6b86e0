// Package cli implements the advisor command line over the same use cases the API serves.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

type Services struct {
	Ingestor  ports.DocumentIngestor
	Retriever ports.Retriever
	Asker     ports.QuestionAnswerer

	DefaultMaxIterations int
}

func NewRootCommand(svc Services) *cobra.Command {
	root := &cobra.Command{
		Use:   "advisor",
		Short: "Query documents and get grounded strategic advice",
		Long: `advisor answers questions over the ingested document corpus.

Example usage:
  advisor ingest ./reports/q3.pdf            # Queue a document for indexing
  advisor query "churn drivers"              # Show the best matching passages
  advisor ask -m strategic "Enter the EU?"   # Run the strategic analysis`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newQueryCommand(svc),
		newAskCommand(svc),
		newIngestCommand(svc),
	)
	return root
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
