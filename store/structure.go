package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ragcore/types"

	"github.com/google/uuid"
)

func (p *PostgresStore) SaveStructureNodes(ctx context.Context, nodes []types.StructureNode) error {
	for _, n := range nodes {
		query := `
		INSERT INTO structure_nodes (id, doc_id, parent_id, level, ordering, path, title, semantic_type, start_page, end_page, token_count, child_count, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (doc_id, path) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			level = EXCLUDED.level,
			ordering = EXCLUDED.ordering,
			title = EXCLUDED.title,
			semantic_type = EXCLUDED.semantic_type,
			start_page = EXCLUDED.start_page,
			end_page = EXCLUDED.end_page,
			token_count = EXCLUDED.token_count,
			child_count = EXCLUDED.child_count,
			content = EXCLUDED.content`
		var parent any
		if n.ParentID.Valid {
			parent = n.ParentID.UUID
		}
		if _, err := p.pool.Exec(ctx, query,
			n.ID, n.DocID, parent, n.Level, n.Ordering, n.Path, n.Title, n.SemanticType,
			n.StartPage, n.EndPage, n.TokenCount, n.ChildCount, n.Content,
		); err != nil {
			return fmt.Errorf("save structure node %s: %w", n.Path, err)
		}
	}
	return nil
}

func (p *PostgresStore) DeleteStructureByDocID(ctx context.Context, docID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM structure_nodes WHERE doc_id = $1", docID)
	return err
}

const structureColumns = `id, doc_id, parent_id, level, ordering, path, title, semantic_type, start_page, end_page, token_count, child_count, content`

// GetStructureNodes returns the document's flat node list in stable
// (level, ordering) order; the tree is rebuilt by the caller.
func (p *PostgresStore) GetStructureNodes(ctx context.Context, docID uuid.UUID) ([]types.StructureNode, error) {
	query := fmt.Sprintf(`SELECT %s FROM structure_nodes WHERE doc_id = $1 ORDER BY level, ordering`, structureColumns)
	rows, err := p.pool.Query(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []types.StructureNode
	for rows.Next() {
		n, err := scanStructureNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (p *PostgresStore) GetStructureByPath(ctx context.Context, docID uuid.UUID, path string) (*types.StructureNode, error) {
	query := fmt.Sprintf(`SELECT %s FROM structure_nodes WHERE doc_id = $1 AND path = $2`, structureColumns)
	rows, err := p.pool.Query(ctx, query, docID, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	n, err := scanStructureNode(rows)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetSections returns content-bearing sections ordered by page, either
// ascending (start prioritization) or descending (end).
func (p *PostgresStore) GetSections(ctx context.Context, docID uuid.UUID, filter types.SectionFilter) ([]types.StructureNode, error) {
	var conds []string
	args := []any{docID}

	conds = append(conds, "doc_id = $1", "level > 0")
	if len(filter.SemanticTypes) > 0 {
		args = append(args, filter.SemanticTypes)
		conds = append(conds, fmt.Sprintf("semantic_type = ANY($%d)", len(args)))
	}
	if filter.PageStart > 0 {
		args = append(args, filter.PageStart)
		conds = append(conds, fmt.Sprintf("end_page >= $%d", len(args)))
	}
	if filter.PageEnd > 0 {
		args = append(args, filter.PageEnd)
		conds = append(conds, fmt.Sprintf("start_page <= $%d", len(args)))
	}

	order := "start_page, level, ordering"
	if filter.PageDescend {
		order = "start_page DESC, level DESC, ordering DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM structure_nodes WHERE %s ORDER BY %s`,
		structureColumns, strings.Join(conds, " AND "), order)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []types.StructureNode
	for rows.Next() {
		n, err := scanStructureNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStructureNode(row rowScanner) (types.StructureNode, error) {
	var n types.StructureNode
	var parent *uuid.UUID
	var title, semType, content *string
	err := row.Scan(
		&n.ID, &n.DocID, &parent, &n.Level, &n.Ordering, &n.Path,
		&title, &semType, &n.StartPage, &n.EndPage, &n.TokenCount, &n.ChildCount, &content,
	)
	if err != nil {
		return n, err
	}
	if parent != nil {
		n.ParentID = uuid.NullUUID{UUID: *parent, Valid: true}
	}
	if title != nil {
		n.Title = *title
	}
	if semType != nil {
		n.SemanticType = *semType
	}
	if content != nil {
		n.Content = *content
	}
	return n, nil
}

func (p *PostgresStore) SaveOverview(ctx context.Context, o types.DocumentOverview) error {
	query := `
	INSERT INTO document_overviews (doc_id, total_tokens, total_sections, outline, topic_tags, summary, complexity, page_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (doc_id) DO UPDATE SET
		total_tokens = EXCLUDED.total_tokens,
		total_sections = EXCLUDED.total_sections,
		outline = EXCLUDED.outline,
		topic_tags = EXCLUDED.topic_tags,
		summary = EXCLUDED.summary,
		complexity = EXCLUDED.complexity,
		page_count = EXCLUDED.page_count`
	_, err := p.pool.Exec(ctx, query,
		o.DocID, o.TotalTokens, o.TotalSections, o.Outline, o.TopicTags, o.Summary, o.Complexity, o.PageCount)
	return err
}

func (p *PostgresStore) GetOverview(ctx context.Context, docID uuid.UUID) (*types.DocumentOverview, error) {
	query := `
	SELECT doc_id, total_tokens, total_sections, outline, topic_tags, summary, complexity, page_count
	FROM document_overviews WHERE doc_id = $1`
	rows, err := p.pool.Query(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	var o types.DocumentOverview
	var summary *string
	if err := rows.Scan(&o.DocID, &o.TotalTokens, &o.TotalSections, &o.Outline, &o.TopicTags, &summary, &o.Complexity, &o.PageCount); err != nil {
		return nil, err
	}
	if summary != nil {
		o.Summary = *summary
	}
	return &o, nil
}
