package graph

import (
	"context"
	"log/slog"
	"time"

	"ragcore/search"
	"ragcore/types"

	"github.com/google/uuid"
)

const (
	// entity match cap bounds graph blow-up on broad queries
	matchCap = 50
	// query terms shorter than this carry no entity signal
	minTermLen = 3

	defaultHops = 1
	defaultTopK = 20
)

// Store is the persistence slice behind graph retrieval.
type Store interface {
	MatchEntities(ctx context.Context, tenant string, terms []string, cap int) ([]types.Entity, error)
	ExpandEntities(ctx context.Context, entityIDs []uuid.UUID) ([]uuid.UUID, error)
	ChunksForEntities(ctx context.Context, entityIDs []uuid.UUID, docIDs []uuid.UUID, limit int) ([]types.DocumentChunk, error)
}

type Options struct {
	TopK    int
	MaxHops int
	DocIDs  []uuid.UUID
}

// Retriever boosts recall by walking the knowledge graph: query terms to
// entities, entities to neighbours, neighbours back to passages.
type Retriever struct {
	store  Store
	logger *slog.Logger
}

func NewRetriever(store Store) *Retriever {
	return &Retriever{
		store:  store,
		logger: slog.Default(),
	}
}

// QueryTerms extracts the deduplicated terms of at least three
// characters the entity matcher works with.
func QueryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range search.Tokenize(query) {
		if len(t) < minTermLen || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

// GetRelevantDocuments maps the query onto the tenant's entity graph and
// returns the passages mentioning the expanded entity set. Every stage
// short-circuits to an empty list when it produces no candidates.
func (r *Retriever) GetRelevantDocuments(ctx context.Context, query, tenant string, opts Options) ([]types.SearchResult, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	hops := opts.MaxHops
	if hops <= 0 {
		hops = defaultHops
	}

	terms := QueryTerms(query)
	if len(terms) == 0 {
		return []types.SearchResult{}, nil
	}

	entities, err := r.store.MatchEntities(ctx, tenant, terms, matchCap)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return []types.SearchResult{}, nil
	}

	// hop expansion is sequential: each hop feeds on the previous hop's
	// entity set
	entitySet := make(map[uuid.UUID]bool, len(entities))
	frontier := make([]uuid.UUID, 0, len(entities))
	for _, e := range entities {
		entitySet[e.ID] = true
		frontier = append(frontier, e.ID)
	}

	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		neighbours, err := r.store.ExpandEntities(ctx, frontier)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, id := range neighbours {
			if !entitySet[id] {
				entitySet[id] = true
				frontier = append(frontier, id)
			}
		}
	}

	ids := make([]uuid.UUID, 0, len(entitySet))
	for id := range entitySet {
		ids = append(ids, id)
	}

	chunks, err := r.store.ChunksForEntities(ctx, ids, opts.DocIDs, topK)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []types.SearchResult{}, nil
	}

	r.logger.Debug("graph retrieval done",
		"terms", len(terms), "entities", len(entitySet), "chunks", len(chunks))

	now := time.Now()
	results := make([]types.SearchResult, len(chunks))
	for i, c := range chunks {
		results[i] = types.SearchResult{
			Content: c.Content,
			Metadata: types.SearchMetadata{
				Page:            c.Metadata.PageNumber,
				DocumentID:      c.DocID.String(),
				RetrievalMethod: types.MethodGraph,
				SearchScope:     string(types.ScopeTenant),
				Timestamp:       now,
			},
		}
	}
	return results, nil
}
