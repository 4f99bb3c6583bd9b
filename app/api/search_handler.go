package api

import (
	"context"

	"ragcore/graph"
	"ragcore/search"
	"ragcore/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ChunkStore resolves chunk IDs back to their content, preserving the
// caller's ID order.
type ChunkStore interface {
	GetChunksByIDs(ctx context.Context, ids []uuid.UUID) ([]types.DocumentChunk, error)
}

// SearchHandler serves the tenant-wide retrieval strategies: the
// ensemble cascade, the knowledge-graph walk, and chunk lookup.
type SearchHandler struct {
	retriever *search.Retriever
	graph     *graph.Retriever
	chunks    ChunkStore
}

func NewSearchHandler(retriever *search.Retriever, graphRetriever *graph.Retriever, chunks ChunkStore) *SearchHandler {
	return &SearchHandler{
		retriever: retriever,
		graph:     graphRetriever,
		chunks:    chunks,
	}
}

type SearchResponse struct {
	Results []types.SearchResult `json:"results"`
	Method  string               `json:"method"`
	Count   int                  `json:"count"`
}

func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	var params types.SearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	scope, err := buildScope(params)
	if err != nil {
		return ErrInvalidID()
	}

	results, method, err := h.retriever.Search(c.Context(), params.Query, scope, search.Options{TopK: params.TopK})
	if err != nil {
		return err
	}
	return c.JSON(SearchResponse{
		Results: results,
		Method:  method,
		Count:   len(results),
	})
}

func (h *SearchHandler) HandleGraphSearch(c *fiber.Ctx) error {
	var params types.GraphParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	docIDs, err := parseUUIDs(params.DocIDs)
	if err != nil {
		return ErrInvalidID()
	}

	results, err := h.graph.GetRelevantDocuments(c.Context(), params.Query, params.Tenant, graph.Options{
		TopK:    params.TopK,
		MaxHops: params.MaxHops,
		DocIDs:  docIDs,
	})
	if err != nil {
		return err
	}
	return c.JSON(SearchResponse{
		Results: results,
		Method:  types.MethodGraph,
		Count:   len(results),
	})
}

// HandleChunks resolves a batch of chunk IDs, e.g. to rehydrate results
// referenced from a workspace entry. Unknown IDs are silently skipped.
func (h *SearchHandler) HandleChunks(c *fiber.Ctx) error {
	var params types.ChunkParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	ids, err := parseUUIDs(params.IDs)
	if err != nil {
		return ErrInvalidID()
	}
	chunks, err := h.chunks.GetChunksByIDs(c.Context(), ids)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"chunks": chunks, "count": len(chunks)})
}

// buildScope narrows from the most specific field given: one document,
// then a document set, then the whole tenant.
func buildScope(params types.SearchParams) (types.SearchScope, error) {
	if params.DocID != "" {
		docID, err := uuid.Parse(params.DocID)
		if err != nil {
			return types.SearchScope{}, err
		}
		return types.SearchScope{Type: types.ScopeDocument, Tenant: params.Tenant, DocID: docID}, nil
	}
	if len(params.DocIDs) > 0 {
		ids, err := parseUUIDs(params.DocIDs)
		if err != nil {
			return types.SearchScope{}, err
		}
		return types.SearchScope{Type: types.ScopeSet, Tenant: params.Tenant, DocIDs: ids}, nil
	}
	return types.SearchScope{Type: types.ScopeTenant, Tenant: params.Tenant}, nil
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
