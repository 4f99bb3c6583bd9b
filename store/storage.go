package store

import (
	"context"
	"fmt"
	"log"

	"ragcore/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore persists chunks, structure, overviews, workspace entries
// and the knowledge graph in one database. The vector index lives on the
// chunks table (pgvector, cosine ops).
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
}

func NewPostgresStore(ctx context.Context, connStr string, dimension int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if dimension <= 0 {
		dimension = 1536
	}

	return &PostgresStore{
		pool:      pool,
		dimension: dimension,
	}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
    CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		tenant TEXT NOT NULL,
		title TEXT NOT NULL,
		source_type TEXT,
		provider TEXT,
		confidence DOUBLE PRECISION DEFAULT 0,
		page_count INTEGER DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE,
		version INTEGER DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant);

    CREATE TABLE IF NOT EXISTS chunks (
        id UUID PRIMARY KEY,
        doc_id UUID NOT NULL,
        tenant TEXT NOT NULL,
        chunk_index INT NOT NULL,
        page_number INT NOT NULL,
        chunks_in_page INT NOT NULL DEFAULT 0,
        type TEXT CHECK (type IN ('text','table')),
        is_table BOOLEAN NOT NULL DEFAULT FALSE,
        table_index INT,
        table_description TEXT,
        content TEXT NOT NULL,
        embedding vector(%d)
    );

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_tenant ON chunks(tenant);

	CREATE TABLE IF NOT EXISTS structure_nodes (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL,
		parent_id UUID,
		level INT NOT NULL,
		ordering INT NOT NULL,
		path TEXT NOT NULL,
		title TEXT,
		semantic_type TEXT,
		start_page INT,
		end_page INT,
		token_count INT NOT NULL DEFAULT 0,
		child_count INT NOT NULL DEFAULT 0,
		content TEXT,
		UNIQUE (doc_id, path)
	);

	CREATE INDEX IF NOT EXISTS idx_structure_doc_id ON structure_nodes(doc_id);

	CREATE TABLE IF NOT EXISTS document_overviews (
		doc_id UUID PRIMARY KEY,
		total_tokens INT NOT NULL,
		total_sections INT NOT NULL,
		outline TEXT[],
		topic_tags TEXT[],
		summary TEXT,
		complexity DOUBLE PRECISION,
		page_count INT
	);

	CREATE TABLE IF NOT EXISTS workspace_results (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		parent_id UUID,
		kind TEXT,
		content TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workspace_session ON workspace_results(session_id);
	CREATE INDEX IF NOT EXISTS idx_workspace_expires ON workspace_results(expires_at);

	CREATE TABLE IF NOT EXISTS kg_entities (
		id UUID PRIMARY KEY,
		tenant TEXT NOT NULL,
		name TEXT NOT NULL,
		label TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		mention_count INT NOT NULL DEFAULT 0,
		UNIQUE (tenant, name, label)
	);

	CREATE INDEX IF NOT EXISTS idx_kg_entities_tenant_name ON kg_entities(tenant, name);

	CREATE TABLE IF NOT EXISTS kg_mentions (
		entity_id UUID NOT NULL,
		chunk_id UUID NOT NULL,
		doc_id UUID NOT NULL,
		PRIMARY KEY (entity_id, chunk_id)
	);

	CREATE INDEX IF NOT EXISTS idx_kg_mentions_entity ON kg_mentions(entity_id);

	CREATE TABLE IF NOT EXISTS kg_relationships (
		id UUID PRIMARY KEY,
		source_id UUID NOT NULL,
		target_id UUID NOT NULL,
		rel_type TEXT NOT NULL,
		weight DOUBLE PRECISION NOT NULL DEFAULT 0,
		UNIQUE (source_id, target_id, rel_type)
	);

	CREATE INDEX IF NOT EXISTS idx_kg_rel_source ON kg_relationships(source_id);
	CREATE INDEX IF NOT EXISTS idx_kg_rel_target ON kg_relationships(target_id);
    `, p.dimension)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) SaveDocument(ctx context.Context, docID uuid.UUID, tenant, title string, meta types.DocumentMetadata) error {
	query := `INSERT INTO documents (id, tenant, title, source_type, provider, confidence, page_count, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now(), 1)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			source_type = EXCLUDED.source_type,
			provider = EXCLUDED.provider,
			confidence = EXCLUDED.confidence,
			page_count = EXCLUDED.page_count,
			updated_at = now(),
			version = documents.version + 1
			`
	_, err := p.pool.Exec(ctx, query, docID, tenant, title, meta.SourceType, meta.Provider, meta.Confidence, meta.PageCount)
	return err
}

func (p *PostgresStore) SaveChunk(ctx context.Context, tenant string, c types.VectorizedChunk) error {
	query := `
    INSERT INTO chunks (id, doc_id, tenant, chunk_index, page_number, chunks_in_page, type, is_table, table_index, table_description, content, embedding)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err := p.pool.Exec(ctx, query,
		c.ID, c.DocID, tenant,
		c.Metadata.ChunkIndex, c.Metadata.PageNumber, c.Metadata.TotalChunksInPage,
		string(c.Type), c.Metadata.IsTable, c.Metadata.TableIndex, c.Metadata.TableDescription,
		c.Content, pgvector.NewVector(c.Embedding),
	)
	return err
}

func (p *PostgresStore) DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", docID)
	return err
}

// scopeClause renders the WHERE fragment for a search scope. Args start
// at position base+1.
func scopeClause(scope types.SearchScope, base int) (string, []any) {
	switch scope.Type {
	case types.ScopeDocument:
		return fmt.Sprintf("doc_id = $%d", base+1), []any{scope.DocID}
	case types.ScopeSet:
		return fmt.Sprintf("doc_id = ANY($%d)", base+1), []any{scope.DocIDs}
	default:
		return fmt.Sprintf("tenant = $%d", base+1), []any{scope.Tenant}
	}
}

// CandidateChunks returns the scope's chunks for on-demand lexical
// indexing, in stable chunk order.
func (p *PostgresStore) CandidateChunks(ctx context.Context, scope types.SearchScope, limit int) ([]types.DocumentChunk, error) {
	where, args := scopeClause(scope, 0)
	query := fmt.Sprintf(`
		SELECT id, doc_id, chunk_index, page_number, chunks_in_page, type, is_table, table_description, content
		FROM chunks
		WHERE %s
		ORDER BY doc_id, chunk_index
		LIMIT $2`, where)
	args = append(args, limit)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.DocumentChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func scanChunk(rows pgx.Rows) (types.DocumentChunk, error) {
	var c types.DocumentChunk
	var chunkType string
	err := rows.Scan(
		&c.ID,
		&c.DocID,
		&c.Metadata.ChunkIndex,
		&c.Metadata.PageNumber,
		&c.Metadata.TotalChunksInPage,
		&chunkType,
		&c.Metadata.IsTable,
		&c.Metadata.TableDescription,
		&c.Content,
	)
	c.Type = types.ChunkType(chunkType)
	return c, err
}

// VectorSearch is the primary ensemble leg: k nearest by cosine distance
// inside the scope.
func (p *PostgresStore) VectorSearch(ctx context.Context, queryVec []float32, scope types.SearchScope, limit int) ([]types.ScoredChunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	where, args := scopeClause(scope, 1)
	query := fmt.Sprintf(`
		SELECT id, doc_id, chunk_index, page_number, chunks_in_page, type, is_table, table_description, content,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL AND %s
		ORDER BY embedding <=> $1
		LIMIT $3`, where)

	allArgs := append([]any{pgvector.NewVector(queryVec)}, args...)
	allArgs = append(allArgs, limit)
	return p.queryScored(ctx, query, allArgs...)
}

// VectorSearchANN is the second fallback tier: approximate scan with a
// fixed similarity floor over a narrower candidate count.
func (p *PostgresStore) VectorSearchANN(ctx context.Context, queryVec []float32, scope types.SearchScope, limit int, minSimilarity float64) ([]types.ScoredChunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// probes=1 keeps the ivfflat scan cheap; this tier trades recall for
	// staying alive when the full ensemble failed
	if _, err := tx.Exec(ctx, "SET LOCAL ivfflat.probes = 1"); err != nil {
		return nil, err
	}

	where, args := scopeClause(scope, 2)
	query := fmt.Sprintf(`
		SELECT id, doc_id, chunk_index, page_number, chunks_in_page, type, is_table, table_description, content,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2 AND %s
		ORDER BY embedding <=> $1
		LIMIT $4`, where)

	allArgs := append([]any{pgvector.NewVector(queryVec), minSimilarity}, args...)
	allArgs = append(allArgs, limit)

	rows, err := tx.Query(ctx, query, allArgs...)
	if err != nil {
		return nil, err
	}
	chunks, err := collectScored(rows)
	if err != nil {
		return nil, err
	}
	return chunks, tx.Commit(ctx)
}

// VectorSearchRaw is the last-resort tier: a raw distance query with a
// small fixed limit and no scope joins beyond tenant.
func (p *PostgresStore) VectorSearchRaw(ctx context.Context, queryVec []float32, tenant string, limit int) ([]types.ScoredChunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	query := `
		SELECT id, doc_id, chunk_index, page_number, chunks_in_page, type, is_table, table_description, content,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL AND tenant = $2
		ORDER BY embedding <=> $1
		LIMIT $3`
	return p.queryScored(ctx, query, pgvector.NewVector(queryVec), tenant, limit)
}

func (p *PostgresStore) queryScored(ctx context.Context, query string, args ...any) ([]types.ScoredChunk, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectScored(rows)
}

func collectScored(rows pgx.Rows) ([]types.ScoredChunk, error) {
	defer rows.Close()
	var chunks []types.ScoredChunk
	for rows.Next() {
		var c types.ScoredChunk
		var chunkType string
		if err := rows.Scan(
			&c.ID,
			&c.DocID,
			&c.Metadata.ChunkIndex,
			&c.Metadata.PageNumber,
			&c.Metadata.TotalChunksInPage,
			&chunkType,
			&c.Metadata.IsTable,
			&c.Metadata.TableDescription,
			&c.Content,
			&c.Score,
		); err != nil {
			return nil, err
		}
		c.Type = types.ChunkType(chunkType)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunksByIDs fetches chunks preserving the caller's ID order.
func (p *PostgresStore) GetChunksByIDs(ctx context.Context, ids []uuid.UUID) ([]types.DocumentChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, doc_id, chunk_index, page_number, chunks_in_page, type, is_table, table_description, content
		FROM chunks
		WHERE id = ANY($1)`
	rows, err := p.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]types.DocumentChunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunks := make([]types.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
