package usecase

import (
	"sort"
	"strings"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	chunk domain.RetrievedChunk
	score float64
	order int
}

// FuseRRF merges a semantic and a keyword ranking with reciprocal rank fusion.
// Items are deduplicated by normalized text; ties keep first-seen order with the
// semantic list walked first. The result holds at most topN items.
func FuseRRF(semantic, keyword []domain.RankedHit, rrfK, topN int) []domain.RetrievedChunk {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate, len(semantic)+len(keyword))
	addList := func(hits []domain.RankedHit) {
		for rank, hit := range hits {
			key := normalizeText(hit.Text)
			candidate, ok := acc[key]
			if !ok {
				candidate = &fusedCandidate{
					chunk: domain.RetrievedChunk{Text: hit.Text, Metadata: hit.Metadata},
					order: len(acc),
				}
				acc[key] = candidate
			}
			candidate.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	addList(semantic)
	addList(keyword)

	ordered := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].order < ordered[j].order
	})

	out := make([]domain.RetrievedChunk, 0, len(ordered))
	for _, c := range ordered {
		chunk := c.chunk
		chunk.Score = c.score
		out = append(out, chunk)
	}
	return trimCandidates(out, topN)
}

func trimCandidates(chunks []domain.RetrievedChunk, limit int) []domain.RetrievedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

// normalizeText collapses whitespace runs and trims the result.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
