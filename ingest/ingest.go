package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"ragcore/chunker"
	"ragcore/graph"
	"ragcore/model"
	"ragcore/types"

	"github.com/google/uuid"
)

const defaultEmbedBatchSize = 32

// Store is the write side of one ingestion run.
type Store interface {
	SaveDocument(ctx context.Context, docID uuid.UUID, tenant, title string, meta types.DocumentMetadata) error
	DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error
	SaveChunk(ctx context.Context, tenant string, c types.VectorizedChunk) error
	SaveStructureNodes(ctx context.Context, nodes []types.StructureNode) error
	DeleteStructureByDocID(ctx context.Context, docID uuid.UUID) error
	SaveOverview(ctx context.Context, o types.DocumentOverview) error
}

// Service turns standardized documents into persisted chunks, structure
// and overview rows. Re-ingesting a document supersedes the previous
// run's rows entirely.
type Service struct {
	store     Store
	embedder  model.EmbedderInterface
	builder   *graph.Builder // nil disables knowledge graph updates
	cfg       chunker.Config
	batchSize int
	logger    *slog.Logger
}

type Result struct {
	DocID    uuid.UUID `json:"doc_id"`
	Chunks   int       `json:"chunks"`
	Sections int       `json:"sections"`
	Entities int       `json:"entities"`
}

func NewService(store Store, embedder model.EmbedderInterface, builder *graph.Builder, cfg chunker.Config, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		builder:   builder,
		cfg:       cfg,
		batchSize: batchSize,
		logger:    slog.Default(),
	}
}

// IngestDocument runs the full pipeline: document row, chunking,
// embedding, structure tree, overview, and optionally the knowledge
// graph. A zero docID allocates a fresh one.
func (s *Service) IngestDocument(ctx context.Context, tenant, title string, docID uuid.UUID, doc types.StandardizedDocument) (*Result, error) {
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("document %q has no pages", title)
	}
	if docID == uuid.Nil {
		docID = uuid.New()
	}
	if doc.Metadata.PageCount == 0 {
		doc.Metadata.PageCount = len(doc.Pages)
	}

	if err := s.store.SaveDocument(ctx, docID, tenant, title, doc.Metadata); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	if err := s.store.DeleteChunksByDocID(ctx, docID); err != nil {
		return nil, fmt.Errorf("supersede chunks: %w", err)
	}
	if err := s.store.DeleteStructureByDocID(ctx, docID); err != nil {
		return nil, fmt.Errorf("supersede structure: %w", err)
	}

	chunks := chunker.ChunkDocument(doc, docID, s.cfg)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %q produced no chunks", title)
	}

	embeddings, err := s.embedAll(ctx, chunker.PrepareForEmbedding(chunks))
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	vectorized, err := chunker.MergeWithEmbeddings(chunks, embeddings)
	if err != nil {
		return nil, err
	}
	for _, vc := range vectorized {
		if err := s.store.SaveChunk(ctx, tenant, vc); err != nil {
			return nil, fmt.Errorf("save chunk %d: %w", vc.Metadata.ChunkIndex, err)
		}
	}

	nodes, overview := BuildStructure(docID, title, doc)
	if err := s.store.SaveStructureNodes(ctx, nodes); err != nil {
		return nil, fmt.Errorf("save structure: %w", err)
	}
	if err := s.store.SaveOverview(ctx, overview); err != nil {
		return nil, fmt.Errorf("save overview: %w", err)
	}

	entities := 0
	if s.builder != nil {
		entities, err = s.builder.BuildFromChunks(ctx, tenant, chunks)
		if err != nil {
			// graph enrichment is best effort; the document is already
			// searchable at this point
			s.logger.Warn("knowledge graph build failed", "doc_id", docID, "error", err)
		}
	}

	s.logger.Info("document ingested",
		"doc_id", docID, "tenant", tenant,
		"chunks", len(chunks), "sections", len(nodes)-1, "entities", entities)

	return &Result{
		DocID:    docID,
		Chunks:   len(chunks),
		Sections: len(nodes) - 1,
		Entities: entities,
	}, nil
}

// embedAll batches the embedding calls. Each batch gets one retry before
// the run fails; a partial document in the index is worse than no
// document.
func (s *Service) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vecs, err := s.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			s.logger.Warn("embed batch failed, retrying", "offset", start, "error", err)
			vecs, err = s.embedder.EmbedBatch(ctx, batch)
			if err != nil {
				return nil, fmt.Errorf("batch at offset %d: %w", start, err)
			}
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("batch at offset %d: got %d vectors for %d texts", start, len(vecs), len(batch))
		}
		out = append(out, vecs...)
	}
	return out, nil
}
