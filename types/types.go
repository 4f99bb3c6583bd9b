package types

import (
	"time"

	"github.com/google/uuid"
)

type ChunkType string

const (
	ChunkText  ChunkType = "text"
	ChunkTable ChunkType = "table"
)

// Retrieval method tags. Each fallback tier downgrades the tag so callers
// can tell a degraded answer from a full ensemble one.
const (
	MethodEnsemble         = "ensemble"
	MethodEnsembleReranked = "ensemble_reranked"
	MethodLexical          = "lexical"
	MethodVectorANN        = "vector_ann"
	MethodVectorRaw        = "vector_raw"
	MethodHierarchical     = "hierarchical"
	MethodGraph            = "graph"
)

// StandardizedDocument is what an extraction adapter hands the engine:
// ordered pages of text blocks and tables. Immutable once produced.
type StandardizedDocument struct {
	Pages    []Page
	Metadata DocumentMetadata
}

type Page struct {
	Number     int
	TextBlocks []string
	Tables     []Table
}

type Table struct {
	Headers []string
	Rows    [][]string
}

type DocumentMetadata struct {
	SourceType string
	Provider   string
	Confidence float64
	PageCount  int
}

// DocumentChunk is the retrieval unit. Created once per ingestion run,
// never mutated; re-ingestion supersedes the whole set.
type DocumentChunk struct {
	ID       uuid.UUID
	DocID    uuid.UUID
	Content  string
	Type     ChunkType
	Metadata ChunkMetadata
}

type ChunkMetadata struct {
	PageNumber        int
	ChunkIndex        int // global across pages, monotonically increasing
	TotalChunksInPage int
	IsTable           bool
	TableIndex        int    // position of the table on its page, tables only
	TableDescription  string // heuristic label, tables only
}

// VectorizedChunk pairs a chunk with its embedding. Chunk count and
// vector count must always match 1:1.
type VectorizedChunk struct {
	DocumentChunk
	Embedding []float32
}

// ScoredChunk is a chunk with the distance/score its retrieval leg
// assigned to it.
type ScoredChunk struct {
	DocumentChunk
	Score float64
}

// StructureNode is one row of a document's flat, path-addressed outline.
// The tree is rebuilt on read by grouping rows by ParentID; only the
// single root has a null parent.
type StructureNode struct {
	ID           uuid.UUID
	DocID        uuid.UUID
	ParentID     uuid.NullUUID
	Level        int // 0 = root
	Ordering     int // sibling order
	Path         string
	Title        string
	SemanticType string // section, table, paragraph
	StartPage    int
	EndPage      int
	TokenCount   int // own content only, excludes descendants
	ChildCount   int
	Content      string
}

// DocumentOverview is the cheap planning record fetched before any
// expensive retrieval.
type DocumentOverview struct {
	DocID         uuid.UUID
	TotalTokens   int
	TotalSections int
	Outline       []string
	TopicTags     []string
	Summary       string
	Complexity    float64
	PageCount     int
}

// SectionFilter narrows section queries by semantic type and page range.
type SectionFilter struct {
	SemanticTypes []string
	PageStart     int
	PageEnd       int
	PageDescend   bool
}

// SectionWithCost carries the running token total in whatever order the
// sections were emitted. Callers stop consuming past their budget.
type SectionWithCost struct {
	StructureNode
	CumulativeTokens int
}

// WorkspaceEntry is a short-lived intermediate retrieval result, chained
// by parent ID for auditability and garbage-collected after expiry.
type WorkspaceEntry struct {
	ID        uuid.UUID
	SessionID string
	ParentID  uuid.NullUUID
	Kind      string
	Content   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Entity is unique per (name, label, tenant). Confidence is a running
// average over mentions, advisory only.
type Entity struct {
	ID         uuid.UUID
	Tenant     string
	Name       string
	Label      string
	Confidence float64
	Mentions   int
}

// Mention links one entity occurrence to one chunk.
type Mention struct {
	EntityID uuid.UUID
	ChunkID  uuid.UUID
	DocID    uuid.UUID
}

// Relationship is a typed, weighted edge between two entities. The lower
// entity ID is always the source so mirrored edges never duplicate.
type Relationship struct {
	ID       uuid.UUID
	SourceID uuid.UUID
	TargetID uuid.UUID
	Type     string
	Weight   float64
}

// SearchResult is the common output shape of every retrieval strategy.
type SearchResult struct {
	Content  string         `json:"content"`
	Metadata SearchMetadata `json:"metadata"`
}

type SearchMetadata struct {
	Page            int       `json:"page"`
	DocumentID      string    `json:"document_id"`
	Score           float64   `json:"score"`
	RetrievalMethod string    `json:"retrieval_method"`
	SearchScope     string    `json:"search_scope"`
	Timestamp       time.Time `json:"timestamp"`
}

// RLMSearchResult is the hierarchical retriever's bundle for downstream
// prompt assembly. CombinedContent is a deterministic text rendering.
type RLMSearchResult struct {
	Sections           []SectionWithCost `json:"sections"`
	Overview           *DocumentOverview `json:"overview"`
	Previews           []string          `json:"previews"`
	TotalTokensUsed    int               `json:"total_tokens_used"`
	CombinedContent    string            `json:"combined_content"`
	UsedSemanticSearch bool              `json:"used_semantic_search"`
	TokenBudget        int               `json:"token_budget"`
}

type ScopeType string

const (
	ScopeDocument ScopeType = "document"
	ScopeTenant   ScopeType = "tenant"
	ScopeSet      ScopeType = "set"
)

// SearchScope narrows retrieval to a single document, a whole tenant, or
// an explicit document set.
type SearchScope struct {
	Type   ScopeType
	Tenant string
	DocID  uuid.UUID
	DocIDs []uuid.UUID
}

func (s SearchScope) String() string {
	return string(s.Type)
}
