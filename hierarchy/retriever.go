package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"

	"ragcore/model"
	"ragcore/types"

	"github.com/google/uuid"
)

// Prioritization orders for budget-bounded retrieval.
const (
	PrioritizeStart     = "start"
	PrioritizeEnd       = "end"
	PrioritizeRelevance = "relevance"
)

// ErrNoEmbedder is returned when relevance ordering or semantic search is
// requested without an embedding provider. This is a caller configuration
// error, not a fallback case.
var ErrNoEmbedder = errors.New("no embedding provider configured")

// ErrInvalidPath is returned for a structure address that is not a
// dotted numeric path like "1.2.3".
var ErrInvalidPath = errors.New("invalid structure path")

var pathRe = regexp.MustCompile(`^\d+(\.\d+)*$`)

// Store is the slice of the persistence layer the hierarchical retriever
// reads from.
type Store interface {
	GetOverview(ctx context.Context, docID uuid.UUID) (*types.DocumentOverview, error)
	GetStructureNodes(ctx context.Context, docID uuid.UUID) ([]types.StructureNode, error)
	GetStructureByPath(ctx context.Context, docID uuid.UUID, path string) (*types.StructureNode, error)
	GetSections(ctx context.Context, docID uuid.UUID, filter types.SectionFilter) ([]types.StructureNode, error)
	VectorSearch(ctx context.Context, queryVec []float32, scope types.SearchScope, limit int) ([]types.ScoredChunk, error)
}

// BudgetOptions bound one budget-aware retrieval call.
type BudgetOptions struct {
	MaxTokens     int
	Prioritize    string
	SemanticTypes []string
	PageStart     int
	PageEnd       int
	Query         string // relevance ordering only
}

// SemanticOptions bound one in-document semantic search.
type SemanticOptions struct {
	TopK      int
	MaxTokens int
}

// Retriever navigates a document's structural tree under an explicit
// token budget.
type Retriever struct {
	store    Store
	embedder model.EmbedderInterface
	logger   *slog.Logger
}

func NewRetriever(store Store, embedder model.EmbedderInterface) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		logger:   slog.Default(),
	}
}

// GetDocumentOverview returns the cheap planning record. Callers fetch
// this before committing to an expensive retrieval.
func (r *Retriever) GetDocumentOverview(ctx context.Context, docID uuid.UUID) (*types.DocumentOverview, error) {
	return r.store.GetOverview(ctx, docID)
}

// GetDocumentTree rebuilds the outline down to maxDepth levels.
func (r *Retriever) GetDocumentTree(ctx context.Context, docID uuid.UUID, maxDepth int) (*TreeNode, error) {
	nodes, err := r.store.GetStructureNodes(ctx, docID)
	if err != nil {
		return nil, err
	}
	return BuildTree(nodes, maxDepth)
}

// GetStructureByPath fetches one node by its dotted address, e.g. "1.2.3".
func (r *Retriever) GetStructureByPath(ctx context.Context, docID uuid.UUID, path string) (*types.StructureNode, error) {
	if !pathRe.MatchString(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return r.store.GetStructureByPath(ctx, docID, path)
}

// GetSectionsWithinBudget returns the maximal prefix of sections, in the
// chosen order, whose token counts fit inside MaxTokens. The first
// section is always accepted so a tiny budget still returns content: the
// budget is a soft ceiling, not a hard wall.
func (r *Retriever) GetSectionsWithinBudget(ctx context.Context, docID uuid.UUID, opts BudgetOptions) ([]types.SectionWithCost, error) {
	if opts.MaxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", opts.MaxTokens)
	}
	if opts.PageStart > 0 && opts.PageEnd > 0 && opts.PageEnd < opts.PageStart {
		return nil, fmt.Errorf("invalid page range %d-%d", opts.PageStart, opts.PageEnd)
	}

	prioritize := opts.Prioritize
	if prioritize == "" {
		prioritize = PrioritizeStart
	}

	filter := types.SectionFilter{
		SemanticTypes: opts.SemanticTypes,
		PageStart:     opts.PageStart,
		PageEnd:       opts.PageEnd,
		PageDescend:   prioritize == PrioritizeEnd,
	}

	sections, err := r.store.GetSections(ctx, docID, filter)
	if err != nil {
		return nil, err
	}

	if prioritize == PrioritizeRelevance {
		sections, err = r.orderByRelevance(ctx, opts.Query, sections)
		if err != nil {
			return nil, err
		}
	}

	return applyBudget(sections, opts.MaxTokens), nil
}

// applyBudget accumulates sections in order and stops before the first
// one that would blow the budget, unless nothing was accepted yet.
func applyBudget(sections []types.StructureNode, maxTokens int) []types.SectionWithCost {
	var out []types.SectionWithCost
	running := 0
	for _, s := range sections {
		if len(out) > 0 && running+s.TokenCount > maxTokens {
			break
		}
		running += s.TokenCount
		out = append(out, types.SectionWithCost{
			StructureNode:    s,
			CumulativeTokens: running,
		})
	}
	return out
}

// orderByRelevance sorts sections by cosine similarity between the query
// and each section's content. Requires an embedding provider.
func (r *Retriever) orderByRelevance(ctx context.Context, query string, sections []types.StructureNode) ([]types.StructureNode, error) {
	if r.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if query == "" {
		return nil, fmt.Errorf("relevance ordering requires a query")
	}
	if len(sections) == 0 {
		return sections, nil
	}

	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	texts := make([]string, len(sections))
	for i, s := range sections {
		t := s.Content
		if t == "" {
			t = s.Title
		}
		if len(t) > 2000 {
			t = t[:2000]
		}
		texts[i] = t
	}

	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed sections: %w", err)
	}
	if len(vecs) != len(sections) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d sections", len(vecs), len(sections))
	}

	type scored struct {
		node types.StructureNode
		sim  float64
	}
	ranked := make([]scored, len(sections))
	for i, s := range sections {
		ranked[i] = scored{node: s, sim: cosine(queryVec, vecs[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].sim > ranked[j].sim
	})

	ordered := make([]types.StructureNode, len(ranked))
	for i, s := range ranked {
		ordered[i] = s.node
	}
	return ordered, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SemanticSearch runs budgeted relevance retrieval inside one document
// and bundles the result for downstream prompt assembly. Fails loudly
// when no embedder was configured.
func (r *Retriever) SemanticSearch(ctx context.Context, docID uuid.UUID, query string, opts SemanticOptions) (*types.RLMSearchResult, error) {
	if r.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	overview, err := r.store.GetOverview(ctx, docID)
	if err != nil {
		r.logger.Warn("overview unavailable for semantic search", "doc_id", docID, "error", err)
		overview = nil
	}

	sections, err := r.GetSectionsWithinBudget(ctx, docID, BudgetOptions{
		MaxTokens:  maxTokens,
		Prioritize: PrioritizeRelevance,
		Query:      query,
	})
	if err != nil {
		return nil, err
	}
	if len(sections) > topK {
		sections = sections[:topK]
	}

	previews := r.chunkPreviews(ctx, docID, query, topK)

	totalTokens := 0
	if len(sections) > 0 {
		totalTokens = sections[len(sections)-1].CumulativeTokens
	}

	return &types.RLMSearchResult{
		Sections:           sections,
		Overview:           overview,
		Previews:           previews,
		TotalTokensUsed:    totalTokens,
		CombinedContent:    RenderCombinedContent(overview, previews, sections),
		UsedSemanticSearch: true,
		TokenBudget:        maxTokens,
	}, nil
}

// chunkPreviews pulls short keyword previews from the document's nearest
// chunks. Failure is not fatal: previews are garnish, not the answer.
func (r *Retriever) chunkPreviews(ctx context.Context, docID uuid.UUID, query string, topK int) []string {
	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Warn("preview embedding failed", "error", err)
		return nil
	}
	chunks, err := r.store.VectorSearch(ctx, queryVec, types.SearchScope{Type: types.ScopeDocument, DocID: docID}, topK)
	if err != nil {
		r.logger.Warn("preview search failed", "error", err)
		return nil
	}
	previews := make([]string, 0, len(chunks))
	for _, c := range chunks {
		p := c.Content
		if len(p) > 200 {
			p = p[:200] + "..."
		}
		previews = append(previews, p)
	}
	return previews
}
