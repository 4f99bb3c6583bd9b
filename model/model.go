package model

import "context"

// EmbedderInterface turns text into fixed-length vectors. Dimensionality
// is fixed per deployment; a mismatch is a configuration error.
type EmbedderInterface interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// RerankerInterface rescores candidate passages against a query with a
// cross-encoder. Optional: failure never fails the whole search.
type RerankerInterface interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// ExtractedEntity is one named entity found in a chunk of text.
type ExtractedEntity struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ChunkEntities groups the entities found in one chunk.
type ChunkEntities struct {
	Text     string            `json:"text"`
	Entities []ExtractedEntity `json:"entities"`
}

// EntityExtractorInterface runs NER over text chunks for the knowledge
// graph builder.
type EntityExtractorInterface interface {
	Extract(ctx context.Context, chunks []string) ([]ChunkEntities, error)
}
