package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

type RetrievalConfig struct {
	TopK           int
	PerSystemCap   int
	ScoreThreshold float64
	RRFK           int
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:           5,
		PerSystemCap:   5,
		ScoreThreshold: 0.3,
		RRFK:           defaultRRFK,
	}
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	def := DefaultRetrievalConfig()
	if c.TopK <= 0 {
		c.TopK = def.TopK
	}
	if c.PerSystemCap <= 0 {
		c.PerSystemCap = def.PerSystemCap
	}
	if c.ScoreThreshold < 0 {
		c.ScoreThreshold = def.ScoreThreshold
	}
	if c.RRFK <= 0 {
		c.RRFK = def.RRFK
	}
	return c
}

// RetrievalUseCase is the hybrid retrieval facade.
type RetrievalUseCase struct {
	semantic ports.SimilaritySearcher
	keyword  *KeywordRanker
	cfg      RetrievalConfig
	logger   *slog.Logger
	observer ports.RetrievalObserver
}

func NewRetrievalUseCase(
	semantic ports.SimilaritySearcher,
	keyword *KeywordRanker,
	cfg RetrievalConfig,
	logger *slog.Logger,
	observer ports.RetrievalObserver,
) *RetrievalUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopRetrievalObserver{}
	}
	return &RetrievalUseCase{
		semantic: semantic,
		keyword:  keyword,
		cfg:      cfg.normalize(),
		logger:   logger,
		observer: observer,
	}
}

// Query returns at most min(topK, per-system cap) chunks for text.
func (uc *RetrievalUseCase) Query(ctx context.Context, text string, opts domain.QueryOptions) ([]domain.RetrievedChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieval query", errors.New("query text is empty"))
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = uc.cfg.TopK
	}
	threshold := uc.cfg.ScoreThreshold
	if opts.ScoreThreshold != nil {
		threshold = *opts.ScoreThreshold
	}
	n := min(topK, uc.cfg.PerSystemCap)

	semantic, semErr := uc.semanticHits(ctx, text, n, threshold)
	if opts.SemanticOnly {
		if semErr != nil {
			return nil, fmt.Errorf("semantic search: %w", semErr)
		}
		return uc.finish("semantic", rankedToRetrieved(semantic)), nil
	}
	if semErr != nil {
		uc.degraded("semantic", semErr)
	}

	keyword, kwErr := uc.keyword.Rank(ctx, text, n)
	if kwErr != nil {
		if semErr != nil {
			return nil, domain.WrapError(domain.ErrTemporary, "retrieval query", errors.Join(semErr, kwErr))
		}
		uc.degraded("keyword", kwErr)
		keyword = nil
	}

	if len(keyword) == 0 {
		return uc.finish("semantic", rankedToRetrieved(semantic)), nil
	}
	return uc.finish("hybrid", FuseRRF(semantic, keyword, uc.cfg.RRFK, n)), nil
}

// InvalidateCorpusCache forces a full keyword index rebuild on the next query.
func (uc *RetrievalUseCase) InvalidateCorpusCache() {
	uc.keyword.Invalidate()
	uc.logger.Debug("corpus_cache_invalidated")
}

// CorpusChanged lets the facade act as the in-process ingestion notifier.
func (uc *RetrievalUseCase) CorpusChanged(_ context.Context, documentID string) error {
	uc.InvalidateCorpusCache()
	uc.logger.Debug("corpus_changed", "document_id", documentID)
	return nil
}

func (uc *RetrievalUseCase) semanticHits(ctx context.Context, text string, n int, threshold float64) ([]domain.RankedHit, error) {
	raw, err := uc.semantic.Search(ctx, text, n)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RankedHit, 0, len(raw))
	for _, hit := range raw {
		relevance := normalizeRelevance(hit.Distance)
		if relevance < threshold {
			continue
		}
		out = append(out, domain.RankedHit{Text: hit.Text, Metadata: hit.Metadata, Score: relevance})
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (uc *RetrievalUseCase) degraded(source string, err error) {
	uc.observer.ObserveDegradation(source)
	uc.logger.Warn("retrieval_degraded",
		"source", source,
		"error", domain.WrapError(domain.ErrRetrievalDegraded, source, err),
	)
}

func (uc *RetrievalUseCase) finish(mode string, chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	uc.observer.ObserveRetrieval(mode, len(chunks))
	return chunks
}

// normalizeRelevance maps a cosine distance (0 identical, 2 opposite) onto a
// 0..1 higher-is-better scale. Anything at or past orthogonal scores 0.
func normalizeRelevance(distance float64) float64 {
	return max(0, min(1, 1-distance))
}

func rankedToRetrieved(hits []domain.RankedHit) []domain.RetrievedChunk {
	out := make([]domain.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		out = append(out, domain.RetrievedChunk{Text: hit.Text, Metadata: hit.Metadata, Score: hit.Score})
	}
	return out
}

type nopRetrievalObserver struct{}

func (nopRetrievalObserver) ObserveRetrieval(string, int) {}
func (nopRetrievalObserver) ObserveDegradation(string)    {}
