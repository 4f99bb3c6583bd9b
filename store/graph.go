package store

import (
	"context"
	"fmt"
	"log"

	"ragcore/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertEntity records one more mention of (name, label) and folds the
// extraction score into the running-average confidence. The read-then-
// update is deliberately not transactional: confidence is advisory and a
// lost update under concurrent ingestion only drifts the average.
func (p *PostgresStore) UpsertEntity(ctx context.Context, tenant, name, label string, score float64) (types.Entity, error) {
	var e types.Entity
	row := p.pool.QueryRow(ctx,
		`SELECT id, tenant, name, label, confidence, mention_count FROM kg_entities WHERE tenant = $1 AND name = $2 AND label = $3`,
		tenant, name, label)
	err := row.Scan(&e.ID, &e.Tenant, &e.Name, &e.Label, &e.Confidence, &e.Mentions)

	if err == pgx.ErrNoRows {
		e = types.Entity{
			ID:         uuid.New(),
			Tenant:     tenant,
			Name:       name,
			Label:      label,
			Confidence: score,
			Mentions:   1,
		}
		_, err = p.pool.Exec(ctx,
			`INSERT INTO kg_entities (id, tenant, name, label, confidence, mention_count)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (tenant, name, label) DO UPDATE SET
				confidence = (kg_entities.confidence * kg_entities.mention_count + EXCLUDED.confidence) / (kg_entities.mention_count + 1),
				mention_count = kg_entities.mention_count + 1`,
			e.ID, e.Tenant, e.Name, e.Label, e.Confidence, e.Mentions)
		if err != nil {
			return e, fmt.Errorf("insert entity %q: %w", name, err)
		}
		return e, nil
	}
	if err != nil {
		return e, fmt.Errorf("lookup entity %q: %w", name, err)
	}

	e.Confidence = (e.Confidence*float64(e.Mentions) + score) / float64(e.Mentions+1)
	e.Mentions++
	_, err = p.pool.Exec(ctx,
		`UPDATE kg_entities SET confidence = $1, mention_count = $2 WHERE id = $3`,
		e.Confidence, e.Mentions, e.ID)
	if err != nil {
		return e, fmt.Errorf("update entity %q: %w", name, err)
	}
	return e, nil
}

func (p *PostgresStore) UpsertMention(ctx context.Context, m types.Mention) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO kg_mentions (entity_id, chunk_id, doc_id) VALUES ($1, $2, $3)
		 ON CONFLICT (entity_id, chunk_id) DO NOTHING`,
		m.EntityID, m.ChunkID, m.DocID)
	return err
}

// UpsertRelationship adds co-occurrence evidence between two entities.
// The lower ID is always the source so mirrored edges collapse into one
// row; repeated evidence raises the weight, capped at 1.0.
func (p *PostgresStore) UpsertRelationship(ctx context.Context, a, b uuid.UUID, relType string, increment float64) error {
	source, target := a, b
	if b.String() < a.String() {
		source, target = b, a
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO kg_relationships (id, source_id, target_id, rel_type, weight)
		 VALUES ($1, $2, $3, $4, LEAST($5::double precision, 1.0))
		 ON CONFLICT (source_id, target_id, rel_type) DO UPDATE SET
			weight = LEAST(kg_relationships.weight + $5, 1.0)`,
		uuid.New(), source, target, relType, increment)
	return err
}

// MatchEntities fuzzy-matches query terms against entity names inside a
// tenant. The match count is capped to bound graph blow-up.
func (p *PostgresStore) MatchEntities(ctx context.Context, tenant string, terms []string, cap int) ([]types.Entity, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + t + "%"
	}
	query := `
		SELECT id, tenant, name, label, confidence, mention_count
		FROM kg_entities
		WHERE tenant = $1 AND name ILIKE ANY($2)
		ORDER BY mention_count DESC, confidence DESC
		LIMIT $3`
	rows, err := p.pool.Query(ctx, query, tenant, patterns, cap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []types.Entity
	for rows.Next() {
		var e types.Entity
		if err := rows.Scan(&e.ID, &e.Tenant, &e.Name, &e.Label, &e.Confidence, &e.Mentions); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// ExpandEntities follows relationship edges one hop in both directions.
func (p *PostgresStore) ExpandEntities(ctx context.Context, entityIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT target_id FROM kg_relationships WHERE source_id = ANY($1)
		UNION
		SELECT source_id FROM kg_relationships WHERE target_id = ANY($1)`
	rows, err := p.pool.Query(ctx, query, entityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ChunksForEntities collects every chunk mentioning any of the entities,
// optionally restricted to a document subset.
func (p *PostgresStore) ChunksForEntities(ctx context.Context, entityIDs []uuid.UUID, docIDs []uuid.UUID, limit int) ([]types.DocumentChunk, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT DISTINCT c.id, c.doc_id, c.chunk_index, c.page_number, c.chunks_in_page, c.type, c.is_table, c.table_description, c.content
		FROM chunks c
		JOIN kg_mentions m ON m.chunk_id = c.id
		WHERE m.entity_id = ANY($1)`
	args := []any{entityIDs}
	if len(docIDs) > 0 {
		args = append(args, docIDs)
		query += fmt.Sprintf(" AND c.doc_id = ANY($%d)", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY c.doc_id, c.chunk_index LIMIT $%d", len(args))

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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	log.Printf("[GRAPH] %d chunks mention %d entities", len(chunks), len(entityIDs))
	return chunks, nil
}
