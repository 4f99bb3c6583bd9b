package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ragcore/model"
	"ragcore/types"

	"github.com/google/uuid"
)

const (
	// over-fetch factor: the reranker sees more candidates than the
	// caller asked for
	overFetch = 4
	// candidate pool cap for the on-demand lexical index
	maxCandidates = 2000
	// rank-fusion constant, keeps a single #1 rank from dominating
	fusionK = 60

	annMinSimilarity = 0.3
	rawDistanceLimit = 5
)

// Default fusion weights: vector similarity is trusted slightly more
// than keyword overlap.
const (
	DefaultLexicalWeight = 0.4
	DefaultVectorWeight  = 0.6
)

// Store is the slice of the persistence layer the ensemble needs.
type Store interface {
	CandidateChunks(ctx context.Context, scope types.SearchScope, limit int) ([]types.DocumentChunk, error)
	VectorSearch(ctx context.Context, queryVec []float32, scope types.SearchScope, limit int) ([]types.ScoredChunk, error)
	VectorSearchANN(ctx context.Context, queryVec []float32, scope types.SearchScope, limit int, minSimilarity float64) ([]types.ScoredChunk, error)
	VectorSearchRaw(ctx context.Context, queryVec []float32, tenant string, limit int) ([]types.ScoredChunk, error)
}

type Options struct {
	TopK          int
	LexicalWeight float64
	VectorWeight  float64
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	if o.LexicalWeight == 0 && o.VectorWeight == 0 {
		o.LexicalWeight = DefaultLexicalWeight
		o.VectorWeight = DefaultVectorWeight
	}
	return o
}

// Retriever fuses a lexical and a vector ranking and owns the fallback
// cascade. The reranker is optional; its failure never fails a search.
type Retriever struct {
	store    Store
	embedder model.EmbedderInterface
	reranker model.RerankerInterface
	logger   *slog.Logger
}

func NewRetriever(store Store, embedder model.EmbedderInterface, reranker model.RerankerInterface) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		reranker: reranker,
		logger:   slog.Default(),
	}
}

// Search runs the three-tier cascade and returns the results together
// with the method tag of the tier that produced them. Exhaustion yields
// an empty list tagged with the last tier attempted, never an error.
func (r *Retriever) Search(ctx context.Context, query string, scope types.SearchScope, opts Options) ([]types.SearchResult, string, error) {
	opts = opts.withDefaults()

	queryVec, embedErr := r.embedder.EmbedQuery(ctx, query)
	if embedErr != nil {
		r.logger.Warn("query embedding failed, lexical leg only", "error", embedErr)
	}

	// tier 1: full ensemble
	results, method, err := r.ensembleTier(ctx, query, queryVec, scope, opts)
	if err == nil && len(results) > 0 {
		// reranking only upgrades a full ensemble; a lexical-only answer
		// keeps its tag so callers can see the degradation
		if method == types.MethodEnsemble {
			if reranked := r.rerank(ctx, query, results); reranked != nil {
				results = reranked
				method = types.MethodEnsembleReranked
			}
		}
		return r.finalize(results, scope, method, opts.TopK), method, nil
	}
	if err != nil {
		r.logger.Warn("ensemble tier failed, trying ANN tier", "error", err)
	}

	if embedErr != nil {
		// no vector to fall back with
		return []types.SearchResult{}, method, nil
	}

	// tier 2: approximate scan with a similarity floor
	ann, err := r.store.VectorSearchANN(ctx, queryVec, scope, opts.TopK, annMinSimilarity)
	if err == nil && len(ann) > 0 {
		return r.finalize(ann, scope, types.MethodVectorANN, opts.TopK), types.MethodVectorANN, nil
	}
	if err != nil {
		r.logger.Warn("ANN tier failed, trying raw distance tier", "error", err)
	}

	// tier 3: raw distance query, small fixed limit
	raw, err := r.store.VectorSearchRaw(ctx, queryVec, scope.Tenant, rawDistanceLimit)
	if err != nil {
		r.logger.Warn("raw distance tier failed", "error", err)
		return []types.SearchResult{}, types.MethodVectorRaw, nil
	}
	return r.finalize(raw, scope, types.MethodVectorRaw, opts.TopK), types.MethodVectorRaw, nil
}

// ensembleTier runs both legs in parallel and fuses them by weighted
// rank, reporting the method tag of what actually ran. An empty lexical
// index fails the whole tier so the cascade can take over; a failed
// vector leg degrades to the lexical ranking alone, tagged lexical.
func (r *Retriever) ensembleTier(ctx context.Context, query string, queryVec []float32, scope types.SearchScope, opts Options) ([]types.ScoredChunk, string, error) {
	candidates, err := r.store.CandidateChunks(ctx, scope, maxCandidates)
	if err != nil {
		return nil, types.MethodEnsemble, fmt.Errorf("candidate fetch: %w", err)
	}

	index := NewLexicalIndex(candidates)
	if index.Empty() {
		return nil, types.MethodEnsemble, errors.New("lexical index is empty for scope")
	}

	fetch := opts.TopK * overFetch

	var lexical, vector []types.ScoredChunk
	var vectorErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		lexical = index.Search(query, fetch)
	}()
	go func() {
		defer wg.Done()
		if queryVec == nil {
			vectorErr = errors.New("no query vector")
			return
		}
		vector, vectorErr = r.store.VectorSearch(ctx, queryVec, scope, fetch)
	}()
	wg.Wait()

	if vectorErr != nil {
		// degrade to the lexical ranking alone rather than losing the tier
		r.logger.Warn("vector leg failed, lexical ranking only", "error", vectorErr)
		return lexical, types.MethodLexical, nil
	}

	fused := fuseWeighted(
		[]rankedList{
			{chunks: lexical, weight: opts.LexicalWeight},
			{chunks: vector, weight: opts.VectorWeight},
		},
		fetch,
	)
	return fused, types.MethodEnsemble, nil
}

type rankedList struct {
	chunks []types.ScoredChunk
	weight float64
}

// fuseWeighted combines ranked lists by weighted reciprocal rank. A chunk
// present in several lists accumulates score from each.
func fuseWeighted(lists []rankedList, limit int) []types.ScoredChunk {
	scores := make(map[uuid.UUID]float64)
	byID := make(map[uuid.UUID]types.ScoredChunk)

	for _, list := range lists {
		for rank, c := range list.chunks {
			scores[c.ID] += list.weight / float64(fusionK+rank+1)
			if _, ok := byID[c.ID]; !ok {
				byID[c.ID] = c
			}
		}
	}

	fused := make([]types.ScoredChunk, 0, len(scores))
	for id, s := range scores {
		c := byID[id]
		c.Score = s
		fused = append(fused, c)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		// stable tie-break on chunk identity
		return fused[i].ID.String() < fused[j].ID.String()
	})
	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}

// rerank sends the candidates to the cross-encoder and resorts by its
// scores. Any failure returns nil and the fused order stands.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []types.ScoredChunk) []types.ScoredChunk {
	if r.reranker == nil || len(candidates) == 0 {
		return nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}

	scores, err := r.reranker.Rerank(ctx, query, texts)
	if err != nil {
		r.logger.Warn("reranker unavailable, keeping fused order", "error", err)
		return nil
	}
	if len(scores) != len(candidates) {
		r.logger.Warn("reranker score count mismatch, keeping fused order",
			"scores", len(scores), "candidates", len(candidates))
		return nil
	}

	reranked := make([]types.ScoredChunk, len(candidates))
	copy(reranked, candidates)
	for i := range reranked {
		reranked[i].Score = scores[i]
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked
}

func (r *Retriever) finalize(chunks []types.ScoredChunk, scope types.SearchScope, method string, topK int) []types.SearchResult {
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	results := make([]types.SearchResult, len(chunks))
	now := time.Now()
	for i, c := range chunks {
		results[i] = types.SearchResult{
			Content: c.Content,
			Metadata: types.SearchMetadata{
				Page:            c.Metadata.PageNumber,
				DocumentID:      c.DocID.String(),
				Score:           c.Score,
				RetrievalMethod: method,
				SearchScope:     scope.String(),
				Timestamp:       now,
			},
		}
	}
	return results
}
