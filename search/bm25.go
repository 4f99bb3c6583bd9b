package search

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"ragcore/types"
)

// BM25 constants, the usual Okapi defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// LexicalIndex is an in-memory BM25 index built on demand over the
// candidate chunks of one search scope. It lives for a single request.
type LexicalIndex struct {
	chunks   []types.DocumentChunk
	postings []map[string]int // term frequency per chunk
	df       map[string]int   // document frequency per term
	lens     []int
	avgLen   float64
}

func NewLexicalIndex(chunks []types.DocumentChunk) *LexicalIndex {
	ix := &LexicalIndex{
		chunks:   chunks,
		postings: make([]map[string]int, len(chunks)),
		df:       make(map[string]int),
		lens:     make([]int, len(chunks)),
	}

	totalLen := 0
	for i, c := range chunks {
		terms := Tokenize(c.Content)
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t := range tf {
			ix.df[t]++
		}
		ix.postings[i] = tf
		ix.lens[i] = len(terms)
		totalLen += len(terms)
	}
	if len(chunks) > 0 {
		ix.avgLen = float64(totalLen) / float64(len(chunks))
	}
	return ix
}

// Empty reports whether the index has nothing to rank against.
func (ix *LexicalIndex) Empty() bool {
	return len(ix.chunks) == 0 || len(ix.df) == 0
}

// Search ranks the candidate set against the query terms and returns the
// topK best-scoring chunks.
func (ix *LexicalIndex) Search(query string, topK int) []types.ScoredChunk {
	terms := Tokenize(query)
	if len(terms) == 0 || ix.Empty() {
		return nil
	}

	n := float64(len(ix.chunks))
	scores := make([]float64, len(ix.chunks))
	for _, term := range terms {
		df, ok := ix.df[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		for i, tf := range ix.postings {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			denom := f + bm25K1*(1-bm25B+bm25B*float64(ix.lens[i])/ix.avgLen)
			scores[i] += idf * (f * (bm25K1 + 1)) / denom
		}
	}

	var ranked []types.ScoredChunk
	for i, s := range scores {
		if s > 0 {
			ranked = append(ranked, types.ScoredChunk{DocumentChunk: ix.chunks[i], Score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// Tokenize lowercases and splits on anything that is not a letter or
// digit. Shared with the graph retriever's term extraction.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
