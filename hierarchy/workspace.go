package hierarchy

import (
	"context"
	"fmt"
	"time"

	"ragcore/types"

	"github.com/google/uuid"
)

// DefaultWorkspaceTTL is how long an intermediate result lives unless the
// caller overrides it.
const DefaultWorkspaceTTL = 24 * time.Hour

// Clock is injected so tests can advance time instead of sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// WorkspaceStore is the persistence slice behind the scratchpad.
type WorkspaceStore interface {
	InsertWorkspaceEntry(ctx context.Context, e types.WorkspaceEntry) error
	GetChildResults(ctx context.Context, parentID uuid.UUID) ([]types.WorkspaceEntry, error)
	GetSessionResults(ctx context.Context, sessionID string) ([]types.WorkspaceEntry, error)
	SweepWorkspace(ctx context.Context, now time.Time) (int64, error)
}

// Workspace is the short-lived scratchpad for intermediate retrieval
// results. Append-only except for the explicit sweep; no background
// timer reaps entries.
type Workspace struct {
	store WorkspaceStore
	clock Clock
	ttl   time.Duration
}

func NewWorkspace(store WorkspaceStore, ttl time.Duration) *Workspace {
	if ttl <= 0 {
		ttl = DefaultWorkspaceTTL
	}
	return &Workspace{
		store: store,
		clock: systemClock{},
		ttl:   ttl,
	}
}

// NewWorkspaceWithClock is the test constructor.
func NewWorkspaceWithClock(store WorkspaceStore, ttl time.Duration, clock Clock) *Workspace {
	w := NewWorkspace(store, ttl)
	w.clock = clock
	return w
}

// StoreIntermediateResult appends one entry. ParentID chains entries for
// auditability; TTLSeconds overrides the default expiry.
func (w *Workspace) StoreIntermediateResult(ctx context.Context, params types.WorkspaceParams) (types.WorkspaceEntry, error) {
	entry := types.WorkspaceEntry{
		ID:        uuid.New(),
		SessionID: params.SessionID,
		Kind:      params.Kind,
		Content:   params.Content,
		CreatedAt: w.clock.Now(),
	}

	ttl := w.ttl
	if params.TTLSeconds > 0 {
		ttl = time.Duration(params.TTLSeconds) * time.Second
	}
	entry.ExpiresAt = entry.CreatedAt.Add(ttl)

	if params.ParentID != "" {
		parentID, err := uuid.Parse(params.ParentID)
		if err != nil {
			return types.WorkspaceEntry{}, fmt.Errorf("invalid parent result id %q: %w", params.ParentID, err)
		}
		entry.ParentID = uuid.NullUUID{UUID: parentID, Valid: true}
	}

	if err := w.store.InsertWorkspaceEntry(ctx, entry); err != nil {
		return types.WorkspaceEntry{}, err
	}
	return entry, nil
}

func (w *Workspace) GetChildResults(ctx context.Context, parentID uuid.UUID) ([]types.WorkspaceEntry, error) {
	return w.store.GetChildResults(ctx, parentID)
}

func (w *Workspace) GetSessionResults(ctx context.Context, sessionID string) ([]types.WorkspaceEntry, error) {
	return w.store.GetSessionResults(ctx, sessionID)
}

// Sweep deletes everything past expiry as of the injected clock.
func (w *Workspace) Sweep(ctx context.Context) (int64, error) {
	return w.store.SweepWorkspace(ctx, w.clock.Now())
}
