package graph

import (
	"context"
	"fmt"
	"testing"

	"ragcore/model"
	"ragcore/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuilderStore struct {
	entities      map[string]types.Entity // keyed by name|label
	mentions      []types.Mention
	relationships []string // "a|b|type" with canonical order
	increments    []float64
	weights       map[string]float64 // running edge weight per canonical key
	weightHistory []float64
}

func newFakeBuilderStore() *fakeBuilderStore {
	return &fakeBuilderStore{
		entities: make(map[string]types.Entity),
		weights:  make(map[string]float64),
	}
}

func (f *fakeBuilderStore) UpsertEntity(ctx context.Context, tenant, name, label string, score float64) (types.Entity, error) {
	key := name + "|" + label
	if e, ok := f.entities[key]; ok {
		e.Confidence = (e.Confidence*float64(e.Mentions) + score) / float64(e.Mentions+1)
		e.Mentions++
		f.entities[key] = e
		return e, nil
	}
	e := types.Entity{ID: uuid.New(), Tenant: tenant, Name: name, Label: label, Confidence: score, Mentions: 1}
	f.entities[key] = e
	return e, nil
}

func (f *fakeBuilderStore) UpsertMention(ctx context.Context, m types.Mention) error {
	f.mentions = append(f.mentions, m)
	return nil
}

// UpsertRelationship mirrors the store's SQL:
// weight = LEAST(weight + increment, 1.0).
func (f *fakeBuilderStore) UpsertRelationship(ctx context.Context, a, b uuid.UUID, relType string, increment float64) error {
	if b.String() < a.String() {
		a, b = b, a
	}
	key := fmt.Sprintf("%s|%s|%s", a, b, relType)
	f.relationships = append(f.relationships, key)
	f.increments = append(f.increments, increment)

	w := f.weights[key] + increment
	if w > 1.0 {
		w = 1.0
	}
	f.weights[key] = w
	f.weightHistory = append(f.weightHistory, w)
	return nil
}

type fakeExtractor struct {
	results []model.ChunkEntities
	err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, chunks []string) ([]model.ChunkEntities, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func textChunk(content string) types.DocumentChunk {
	return types.DocumentChunk{ID: uuid.New(), DocID: uuid.New(), Content: content}
}

func TestBuildFromChunks(t *testing.T) {
	chunks := []types.DocumentChunk{textChunk("ACME hired Jane Doe")}
	extractor := &fakeExtractor{results: []model.ChunkEntities{{
		Text: chunks[0].Content,
		Entities: []model.ExtractedEntity{
			{Text: "ACME", Label: "ORG", Score: 0.95},
			{Text: "Jane Doe", Label: "PERSON", Score: 0.9},
		},
	}}}
	store := newFakeBuilderStore()
	b := NewBuilder(store, extractor)

	n, err := b.BuildFromChunks(context.Background(), "acme", chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// names are normalized to lower case
	_, ok := store.entities["acme|ORG"]
	assert.True(t, ok)
	_, ok = store.entities["jane doe|PERSON"]
	assert.True(t, ok)

	require.Len(t, store.mentions, 2)
	assert.Equal(t, chunks[0].ID, store.mentions[0].ChunkID)
	assert.Equal(t, chunks[0].DocID, store.mentions[0].DocID)

	require.Len(t, store.relationships, 1, "one co-occurrence edge for the pair")
	assert.Equal(t, []float64{0.1}, store.increments)
}

func TestBuildFromChunksSkipsLowScore(t *testing.T) {
	chunks := []types.DocumentChunk{textChunk("maybe mentions something")}
	extractor := &fakeExtractor{results: []model.ChunkEntities{{
		Entities: []model.ExtractedEntity{
			{Text: "Something", Label: "MISC", Score: 0.2},
			{Text: "", Label: "ORG", Score: 0.99},
		},
	}}}
	store := newFakeBuilderStore()
	b := NewBuilder(store, extractor)

	n, err := b.BuildFromChunks(context.Background(), "acme", chunks)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.mentions)
	assert.Empty(t, store.relationships)
}

func TestBuildFromChunksDuplicateEntityInChunk(t *testing.T) {
	chunks := []types.DocumentChunk{textChunk("ACME and acme again")}
	extractor := &fakeExtractor{results: []model.ChunkEntities{{
		Entities: []model.ExtractedEntity{
			{Text: "ACME", Label: "ORG", Score: 0.9},
			{Text: "acme", Label: "ORG", Score: 0.8},
		},
	}}}
	store := newFakeBuilderStore()
	b := NewBuilder(store, extractor)

	n, err := b.BuildFromChunks(context.Background(), "acme", chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, store.mentions, 1, "one mention per entity per chunk")
	assert.Empty(t, store.relationships, "an entity does not co-occur with itself")

	e := store.entities["acme|ORG"]
	assert.Equal(t, 2, e.Mentions, "confidence still averages over both extractions")
}

func TestBuildFromChunksAccumulatesEdgeWeight(t *testing.T) {
	pair := []model.ExtractedEntity{
		{Text: "ACME", Label: "ORG", Score: 0.9},
		{Text: "Jane", Label: "PERSON", Score: 0.9},
	}
	chunks := []types.DocumentChunk{textChunk("first"), textChunk("second")}
	extractor := &fakeExtractor{results: []model.ChunkEntities{
		{Entities: pair},
		{Entities: pair},
	}}
	store := newFakeBuilderStore()
	b := NewBuilder(store, extractor)

	_, err := b.BuildFromChunks(context.Background(), "acme", chunks)
	require.NoError(t, err)
	require.Len(t, store.relationships, 2)
	assert.Equal(t, store.relationships[0], store.relationships[1], "same canonical edge both times")
}

func TestBuildFromChunksEdgeWeightMonotoneAndClamped(t *testing.T) {
	pair := []model.ExtractedEntity{
		{Text: "ACME", Label: "ORG", Score: 0.9},
		{Text: "Jane", Label: "PERSON", Score: 0.9},
	}
	var chunks []types.DocumentChunk
	var results []model.ChunkEntities
	for i := 0; i < 15; i++ {
		chunks = append(chunks, textChunk(fmt.Sprintf("chunk %d", i)))
		results = append(results, model.ChunkEntities{Entities: pair})
	}
	store := newFakeBuilderStore()
	b := NewBuilder(store, &fakeExtractor{results: results})

	_, err := b.BuildFromChunks(context.Background(), "acme", chunks)
	require.NoError(t, err)

	require.Len(t, store.weightHistory, 15)
	for i := 1; i < len(store.weightHistory); i++ {
		assert.GreaterOrEqual(t, store.weightHistory[i], store.weightHistory[i-1],
			"weight must never decrease")
	}
	for _, w := range store.weightHistory {
		assert.LessOrEqual(t, w, 1.0)
	}
	// 15 increments of 0.1 saturate the cap
	assert.InDelta(t, 1.0, store.weightHistory[14], 1e-9)
	require.Len(t, store.weights, 1)
}

func TestBuildFromChunksEmptyInput(t *testing.T) {
	b := NewBuilder(newFakeBuilderStore(), &fakeExtractor{})
	n, err := b.BuildFromChunks(context.Background(), "acme", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
