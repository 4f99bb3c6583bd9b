package graph

import (
	"context"
	"log/slog"
	"strings"

	"ragcore/model"
	"ragcore/types"

	"github.com/google/uuid"
)

const (
	relCoOccurs = "co_occurs"
	// each shared chunk adds this much evidence to an edge
	weightIncrement = 0.1

	minEntityScore = 0.5
)

// BuilderStore is the write side of the knowledge graph.
type BuilderStore interface {
	UpsertEntity(ctx context.Context, tenant, name, label string, score float64) (types.Entity, error)
	UpsertMention(ctx context.Context, m types.Mention) error
	UpsertRelationship(ctx context.Context, a, b uuid.UUID, relType string, increment float64) error
}

// Builder populates the entity graph during ingestion: NER over every
// chunk, then entities, mentions and co-occurrence edges.
type Builder struct {
	store     BuilderStore
	extractor model.EntityExtractorInterface
	logger    *slog.Logger
}

func NewBuilder(store BuilderStore, extractor model.EntityExtractorInterface) *Builder {
	return &Builder{
		store:     store,
		extractor: extractor,
		logger:    slog.Default(),
	}
}

// BuildFromChunks extracts entities from the chunks and folds them into
// the tenant's graph. Returns the number of distinct entities touched.
func (b *Builder) BuildFromChunks(ctx context.Context, tenant string, chunks []types.DocumentChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	extracted, err := b.extractor.Extract(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(extracted) != len(chunks) {
		b.logger.Warn("extractor returned unexpected result count",
			"got", len(extracted), "want", len(chunks))
		if len(extracted) > len(chunks) {
			extracted = extracted[:len(chunks)]
		}
	}

	touched := make(map[uuid.UUID]bool)
	for i, ce := range extracted {
		chunk := chunks[i]

		// one entity row per distinct name within the chunk, so the
		// co-occurrence pass works on unique IDs
		inChunk := make(map[uuid.UUID]bool)
		var ids []uuid.UUID
		for _, ent := range ce.Entities {
			name := normalizeName(ent.Text)
			if name == "" || ent.Score < minEntityScore {
				continue
			}
			entity, err := b.store.UpsertEntity(ctx, tenant, name, ent.Label, ent.Score)
			if err != nil {
				return len(touched), err
			}
			touched[entity.ID] = true
			if inChunk[entity.ID] {
				continue
			}
			inChunk[entity.ID] = true
			ids = append(ids, entity.ID)

			if err := b.store.UpsertMention(ctx, types.Mention{
				EntityID: entity.ID,
				ChunkID:  chunk.ID,
				DocID:    chunk.DocID,
			}); err != nil {
				return len(touched), err
			}
		}

		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if err := b.store.UpsertRelationship(ctx, ids[i], ids[j], relCoOccurs, weightIncrement); err != nil {
					return len(touched), err
				}
			}
		}
	}

	b.logger.Info("knowledge graph updated", "tenant", tenant, "chunks", len(chunks), "entities", len(touched))
	return len(touched), nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
