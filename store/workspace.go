package store

import (
	"context"
	"time"

	"ragcore/types"

	"github.com/google/uuid"
)

func (p *PostgresStore) InsertWorkspaceEntry(ctx context.Context, e types.WorkspaceEntry) error {
	query := `
	INSERT INTO workspace_results (id, session_id, parent_id, kind, content, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	var parent any
	if e.ParentID.Valid {
		parent = e.ParentID.UUID
	}
	_, err := p.pool.Exec(ctx, query, e.ID, e.SessionID, parent, e.Kind, e.Content, e.CreatedAt, e.ExpiresAt)
	return err
}

const workspaceColumns = `id, session_id, parent_id, kind, content, created_at, expires_at`

func (p *PostgresStore) GetChildResults(ctx context.Context, parentID uuid.UUID) ([]types.WorkspaceEntry, error) {
	return p.queryWorkspace(ctx,
		`SELECT `+workspaceColumns+` FROM workspace_results WHERE parent_id = $1 ORDER BY created_at`, parentID)
}

func (p *PostgresStore) GetSessionResults(ctx context.Context, sessionID string) ([]types.WorkspaceEntry, error) {
	return p.queryWorkspace(ctx,
		`SELECT `+workspaceColumns+` FROM workspace_results WHERE session_id = $1 ORDER BY created_at`, sessionID)
}

// SweepWorkspace deletes every entry past expiry as of now. Called
// explicitly; there is no background timer.
func (p *PostgresStore) SweepWorkspace(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM workspace_results WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) queryWorkspace(ctx context.Context, query string, arg any) ([]types.WorkspaceEntry, error) {
	rows, err := p.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.WorkspaceEntry
	for rows.Next() {
		var e types.WorkspaceEntry
		var parent *uuid.UUID
		var kind *string
		if err := rows.Scan(&e.ID, &e.SessionID, &parent, &kind, &e.Content, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, err
		}
		if parent != nil {
			e.ParentID = uuid.NullUUID{UUID: *parent, Valid: true}
		}
		if kind != nil {
			e.Kind = *kind
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
