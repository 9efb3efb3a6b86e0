package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

// SemanticSearcher embeds the query and asks the vector store for neighbours.
type SemanticSearcher struct {
	embedder ports.Embedder
	vectors  ports.VectorStore
}

func NewSemanticSearcher(embedder ports.Embedder, vectors ports.VectorStore) *SemanticSearcher {
	return &SemanticSearcher{embedder: embedder, vectors: vectors}
}

func (s *SemanticSearcher) Search(ctx context.Context, query string, k int) ([]domain.SimilarityHit, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.vectors.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}
