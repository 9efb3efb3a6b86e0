package usecase

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	defaultBM25K1 = 1.5
	defaultBM25B  = 0.75
)

type bm25Posting struct {
	doc int
	tf  int
}

// bm25Index is an immutable Okapi BM25 index over a fixed corpus.
type bm25Index struct {
	postings map[string][]bm25Posting
	docLens  []int
	avgDL    float64
	k1       float64
	b        float64
}

type bm25Score struct {
	doc   int
	score float64
}

func newBM25Index(texts []string, k1, b float64) *bm25Index {
	if k1 <= 0 {
		k1 = defaultBM25K1
	}
	if b < 0 || b > 1 {
		b = defaultBM25B
	}

	idx := &bm25Index{
		postings: make(map[string][]bm25Posting),
		docLens:  make([]int, len(texts)),
		k1:       k1,
		b:        b,
	}

	total := 0
	for doc, text := range texts {
		tokens := tokenizeWords(text)
		idx.docLens[doc] = len(tokens)
		total += len(tokens)

		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		for term, count := range tf {
			idx.postings[term] = append(idx.postings[term], bm25Posting{doc: doc, tf: count})
		}
	}
	if len(texts) > 0 {
		idx.avgDL = float64(total) / float64(len(texts))
	}
	return idx
}

func (idx *bm25Index) size() int {
	return len(idx.docLens)
}

// top returns at most limit documents with a positive score, best first.
// Equal scores keep corpus order.
func (idx *bm25Index) top(query string, limit int) []bm25Score {
	terms := tokenizeWords(query)
	if len(terms) == 0 || idx.size() == 0 || limit <= 0 {
		return nil
	}

	n := float64(idx.size())
	scores := make(map[int]float64)
	for _, term := range terms {
		postings := idx.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)
		for _, p := range postings {
			tf := float64(p.tf)
			norm := 1.0
			if idx.avgDL > 0 {
				norm = 1 - idx.b + idx.b*float64(idx.docLens[p.doc])/idx.avgDL
			}
			scores[p.doc] += idf * (tf * (idx.k1 + 1)) / (tf + idx.k1*norm)
		}
	}

	out := make([]bm25Score, 0, len(scores))
	for doc, score := range scores {
		if score > 0 {
			out = append(out, bm25Score{doc: doc, score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].doc < out[j].doc
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// tokenizeWords lowercases text and splits it into runs of letters, digits and underscores.
func tokenizeWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
