package usecase

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

// corpusSnapshot is the keyword view of the chunk store at build time.
type corpusSnapshot struct {
	texts     []string
	metadatas []map[string]string
	index     *bm25Index
}

// KeywordRanker scores chunks lexically. The corpus snapshot is built lazily
// on first use and dropped by Invalidate; it is never patched in place.
type KeywordRanker struct {
	store ports.ChunkStore
	k1    float64
	b     float64

	// buildMu admits a single builder at a time.
	buildMu sync.Mutex

	mu         sync.RWMutex
	snapshot   *corpusSnapshot
	generation uint64
}

func NewKeywordRanker(store ports.ChunkStore, k1, b float64) *KeywordRanker {
	return &KeywordRanker{store: store, k1: k1, b: b}
}

// Rank returns at most limit chunks with a positive BM25 score.
func (r *KeywordRanker) Rank(ctx context.Context, query string, limit int) ([]domain.RankedHit, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	if snap.index.size() == 0 {
		return nil, domain.WrapError(domain.ErrCorpusEmpty, "rank keywords", errors.New("no chunks indexed"))
	}

	scored := snap.index.top(query, limit)
	out := make([]domain.RankedHit, 0, len(scored))
	for _, s := range scored {
		if s.score <= 0 {
			continue
		}
		out = append(out, domain.RankedHit{
			Text:     snap.texts[s.doc],
			Metadata: maps.Clone(snap.metadatas[s.doc]),
			Score:    s.score,
		})
	}
	return out, nil
}

// Invalidate drops the snapshot; the next Rank rebuilds it from the store.
func (r *KeywordRanker) Invalidate() {
	r.mu.Lock()
	r.snapshot = nil
	r.generation++
	r.mu.Unlock()
}

func (r *KeywordRanker) current(ctx context.Context) (*corpusSnapshot, error) {
	r.mu.RLock()
	snap := r.snapshot
	r.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	r.mu.RLock()
	snap, gen := r.snapshot, r.generation
	r.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	chunks, err := r.store.ListChunks(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "load keyword corpus", err)
	}
	snap = r.build(chunks)

	r.mu.Lock()
	// An invalidation during the build means the store moved on; serve this
	// snapshot to the current caller only.
	if r.generation == gen {
		r.snapshot = snap
	}
	r.mu.Unlock()
	return snap, nil
}

func (r *KeywordRanker) build(chunks []domain.Chunk) *corpusSnapshot {
	snap := &corpusSnapshot{
		texts:     make([]string, len(chunks)),
		metadatas: make([]map[string]string, len(chunks)),
	}
	for i, chunk := range chunks {
		snap.texts[i] = chunk.Text
		snap.metadatas[i] = maps.Clone(chunk.Metadata)
	}
	snap.index = newBM25Index(snap.texts, r.k1, r.b)
	return snap
}
