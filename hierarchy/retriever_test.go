package hierarchy

import (
	"context"
	"database/sql"
	"testing"

	"ragcore/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	overview *types.DocumentOverview
	nodes    []types.StructureNode
	sections []types.StructureNode
	chunks   []types.ScoredChunk

	overviewErr error
}

func (f *fakeStore) GetOverview(ctx context.Context, docID uuid.UUID) (*types.DocumentOverview, error) {
	if f.overviewErr != nil {
		return nil, f.overviewErr
	}
	return f.overview, nil
}

func (f *fakeStore) GetStructureNodes(ctx context.Context, docID uuid.UUID) ([]types.StructureNode, error) {
	return f.nodes, nil
}

func (f *fakeStore) GetStructureByPath(ctx context.Context, docID uuid.UUID, path string) (*types.StructureNode, error) {
	for i := range f.nodes {
		if f.nodes[i].Path == path {
			return &f.nodes[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) GetSections(ctx context.Context, docID uuid.UUID, filter types.SectionFilter) ([]types.StructureNode, error) {
	return f.sections, nil
}

func (f *fakeStore) VectorSearch(ctx context.Context, queryVec []float32, scope types.SearchScope, limit int) ([]types.ScoredChunk, error) {
	return f.chunks, nil
}

type fakeEmbedder struct {
	// vector returned per text, keyed by a substring match
	byText map[string][]float32
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.byText[t]; ok {
			vecs[i] = v
		} else {
			vecs[i] = []float32{0, 1}
		}
	}
	return vecs, nil
}

func section(path string, tokens int) types.StructureNode {
	return types.StructureNode{
		ID:         uuid.New(),
		Level:      1,
		Path:       path,
		TokenCount: tokens,
		Content:    "content of " + path,
	}
}

func TestApplyBudget(t *testing.T) {
	sections := []types.StructureNode{
		section("1.1", 100),
		section("1.2", 200),
		section("1.3", 300),
	}

	out := applyBudget(sections, 350)
	require.Len(t, out, 2)
	assert.Equal(t, 100, out[0].CumulativeTokens)
	assert.Equal(t, 300, out[1].CumulativeTokens)
}

func TestApplyBudgetFirstSectionAlwaysAccepted(t *testing.T) {
	sections := []types.StructureNode{section("1.1", 5000)}

	out := applyBudget(sections, 10)
	require.Len(t, out, 1, "a tiny budget must still return the first section")
	assert.Equal(t, 5000, out[0].CumulativeTokens)
}

func TestApplyBudgetStopsBeforeOverflow(t *testing.T) {
	sections := []types.StructureNode{
		section("1.1", 100),
		section("1.2", 100),
		section("1.3", 5000),
		section("1.4", 10),
	}

	out := applyBudget(sections, 250)
	require.Len(t, out, 2, "order is respected, no skipping past an oversized section")
	assert.Equal(t, "1.2", out[1].Path)
}

func TestGetSectionsWithinBudgetValidation(t *testing.T) {
	r := NewRetriever(&fakeStore{}, nil)

	_, err := r.GetSectionsWithinBudget(context.Background(), uuid.New(), BudgetOptions{MaxTokens: 0})
	assert.Error(t, err)

	_, err = r.GetSectionsWithinBudget(context.Background(), uuid.New(), BudgetOptions{
		MaxTokens: 100, PageStart: 5, PageEnd: 2,
	})
	assert.Error(t, err)
}

func TestGetSectionsWithinBudgetRelevanceNeedsEmbedder(t *testing.T) {
	store := &fakeStore{sections: []types.StructureNode{section("1.1", 10)}}
	r := NewRetriever(store, nil)

	_, err := r.GetSectionsWithinBudget(context.Background(), uuid.New(), BudgetOptions{
		MaxTokens:  100,
		Prioritize: PrioritizeRelevance,
		Query:      "anything",
	})
	assert.ErrorIs(t, err, ErrNoEmbedder)
}

func TestGetSectionsWithinBudgetRelevanceOrder(t *testing.T) {
	near := section("1.1", 10)
	far := section("1.2", 10)
	store := &fakeStore{sections: []types.StructureNode{far, near}}

	embedder := &fakeEmbedder{byText: map[string][]float32{
		near.Content: {1, 0}, // aligned with the query vector
		far.Content:  {0, 1},
	}}
	r := NewRetriever(store, embedder)

	out, err := r.GetSectionsWithinBudget(context.Background(), uuid.New(), BudgetOptions{
		MaxTokens:  100,
		Prioritize: PrioritizeRelevance,
		Query:      "the query",
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, near.Path, out[0].Path)
}

func TestGetStructureByPathValidation(t *testing.T) {
	r := NewRetriever(&fakeStore{}, nil)

	for _, path := range []string{"", "abc", "1.", ".1", "1..2", "1.2.x"} {
		_, err := r.GetStructureByPath(context.Background(), uuid.New(), path)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", path)
	}

	_, err := r.GetStructureByPath(context.Background(), uuid.New(), "1.2.3")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSemanticSearchNoEmbedder(t *testing.T) {
	r := NewRetriever(&fakeStore{}, nil)
	_, err := r.SemanticSearch(context.Background(), uuid.New(), "query", SemanticOptions{})
	assert.ErrorIs(t, err, ErrNoEmbedder)
}

func TestSemanticSearchToleratesMissingOverview(t *testing.T) {
	sec := section("1.1", 10)
	store := &fakeStore{
		overviewErr: sql.ErrNoRows,
		sections:    []types.StructureNode{sec},
		chunks: []types.ScoredChunk{{
			DocumentChunk: types.DocumentChunk{ID: uuid.New(), Content: "preview chunk text"},
			Score:         0.9,
		}},
	}
	r := NewRetriever(store, &fakeEmbedder{})

	result, err := r.SemanticSearch(context.Background(), uuid.New(), "query", SemanticOptions{TopK: 3})
	require.NoError(t, err)
	assert.Nil(t, result.Overview)
	assert.True(t, result.UsedSemanticSearch)
	assert.Equal(t, 4000, result.TokenBudget)
	require.Len(t, result.Sections, 1)
	require.Len(t, result.Previews, 1)
	assert.Contains(t, result.CombinedContent, "preview chunk text")
	assert.Contains(t, result.CombinedContent, sec.Content)
}

func TestSemanticSearchTruncatesToTopK(t *testing.T) {
	store := &fakeStore{sections: []types.StructureNode{
		section("1.1", 1), section("1.2", 1), section("1.3", 1),
	}}
	r := NewRetriever(store, &fakeEmbedder{})

	result, err := r.SemanticSearch(context.Background(), uuid.New(), "query", SemanticOptions{TopK: 2})
	require.NoError(t, err)
	assert.Len(t, result.Sections, 2)
}
