// Package mcpadapter exposes retrieval and question answering as MCP tools.
package mcpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

const (
	ToolQueryDocuments = "query_documents"
	ToolAskQuestion    = "ask_question"
)

// Version is set at build time via ldflags.
var Version = "dev"

type Tools struct {
	retriever     ports.Retriever
	asker         ports.QuestionAnswerer
	maxIterations int
	logger        *slog.Logger
}

func NewTools(retriever ports.Retriever, asker ports.QuestionAnswerer, maxIterations int, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{
		retriever:     retriever,
		asker:         asker,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// NewServer builds the MCP server with both tools registered.
func NewServer(tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		"decision-assistant",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	s.AddTool(tools.QueryDefinition(), tools.HandleQuery)
	s.AddTool(tools.AskDefinition(), tools.HandleAsk)
	return s
}

const instructions = `Use query_documents to look up passages from the private document corpus.
Use ask_question for a grounded answer; pass mode "strategic" for decisions that need options,
risks and a recommendation.`

func (t *Tools) QueryDefinition() mcp.Tool {
	return mcp.NewTool(ToolQueryDocuments,
		mcp.WithDescription("Hybrid semantic and keyword search over the ingested documents."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text.")),
		mcp.WithNumber("top_k", mcp.Description("Maximum number of passages to return.")),
	)
}

func (t *Tools) HandleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	topK := req.GetInt("top_k", 0)
	if topK < 0 {
		return mcp.NewToolResultError("top_k must not be negative"), nil
	}

	chunks, err := t.retriever.Query(ctx, query, domain.QueryOptions{TopK: topK})
	if err != nil {
		t.logger.Error("mcp_query_failed", "error", err)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return mcp.NewToolResultText(FormatChunks(chunks)), nil
}

func (t *Tools) AskDefinition() mcp.Tool {
	return mcp.NewTool(ToolAskQuestion,
		mcp.WithDescription("Answer a question from the documents, either as a short insight or a strategic analysis."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer.")),
		mcp.WithString("mode",
			mcp.Description("auto, insight or strategic."),
			mcp.Enum("auto", "insight", "strategic"),
		),
		mcp.WithNumber("max_iterations", mcp.Description("Knowledge-gap re-query budget for strategic mode.")),
	)
}

func (t *Tools) HandleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question is required"), nil
	}
	mode := req.GetString("mode", "auto")
	maxIterations := req.GetInt("max_iterations", t.maxIterations)

	result, err := t.asker.Ask(ctx, question, mode, maxIterations)
	if err != nil {
		t.logger.Error("mcp_ask_failed", "error", err)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return mcp.NewToolResultText(FormatAskResult(result)), nil
}

func toolErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return err.Error()
	case domain.IsKind(err, domain.ErrTemporary), errors.Is(err, context.DeadlineExceeded):
		return "the document service is temporarily unavailable, try again later"
	default:
		return "the request could not be completed"
	}
}

// FormatChunks renders retrieval results as numbered passages.
func FormatChunks(chunks []domain.RetrievedChunk) string {
	if len(chunks) == 0 {
		return "No matching passages found."
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		source := c.SourceFile()
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "[%d] %s (score %.4f)\n%s", i+1, source, c.Score, strings.TrimSpace(c.Text))
	}
	return b.String()
}

// FormatAskResult renders an answer with its confidence, risk view and sources.
func FormatAskResult(result *domain.AskResult) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(result.Answer))

	if result.ConfidenceLevel != "" {
		fmt.Fprintf(&b, "\n\nConfidence: %s", result.ConfidenceLevel)
	}
	if rs := result.RiskSummary; rs != nil && len(rs.Options) > 0 && rs.Options[0].Name != "" {
		b.WriteString("\n\nRisks:")
		for _, opt := range rs.Options {
			fmt.Fprintf(&b, "\n- %s", opt.Name)
			if opt.Score != nil {
				fmt.Fprintf(&b, " score %.1f", *opt.Score)
			}
			if opt.Level != "" {
				fmt.Fprintf(&b, " (%s)", opt.Level)
			}
		}
	}

	seen := make(map[string]struct{}, len(result.Sources))
	var sources []string
	for _, c := range result.Sources {
		name := c.SourceFile()
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		sources = append(sources, name)
	}
	if len(sources) > 0 {
		b.WriteString("\n\nSources: ")
		b.WriteString(strings.Join(sources, ", "))
	}
	return b.String()
}
