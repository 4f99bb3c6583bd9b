package hierarchy

import (
	"context"
	"testing"
	"time"

	"ragcore/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeWorkspaceStore struct {
	entries []types.WorkspaceEntry
}

func (f *fakeWorkspaceStore) InsertWorkspaceEntry(ctx context.Context, e types.WorkspaceEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeWorkspaceStore) GetChildResults(ctx context.Context, parentID uuid.UUID) ([]types.WorkspaceEntry, error) {
	var out []types.WorkspaceEntry
	for _, e := range f.entries {
		if e.ParentID.Valid && e.ParentID.UUID == parentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeWorkspaceStore) GetSessionResults(ctx context.Context, sessionID string) ([]types.WorkspaceEntry, error) {
	var out []types.WorkspaceEntry
	for _, e := range f.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeWorkspaceStore) SweepWorkspace(ctx context.Context, now time.Time) (int64, error) {
	var kept []types.WorkspaceEntry
	removed := int64(0)
	for _, e := range f.entries {
		if e.ExpiresAt.After(now) {
			kept = append(kept, e)
		} else {
			removed++
		}
	}
	f.entries = kept
	return removed, nil
}

func TestStoreIntermediateResult(t *testing.T) {
	store := &fakeWorkspaceStore{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	w := NewWorkspaceWithClock(store, 0, clock)

	entry, err := w.StoreIntermediateResult(context.Background(), types.WorkspaceParams{
		SessionID: "session-1",
		Kind:      "partial_answer",
		Content:   "the intermediate finding",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, clock.now, entry.CreatedAt)
	assert.Equal(t, clock.now.Add(DefaultWorkspaceTTL), entry.ExpiresAt)
	assert.False(t, entry.ParentID.Valid)
}

func TestStoreIntermediateResultTTLOverride(t *testing.T) {
	store := &fakeWorkspaceStore{}
	clock := &fakeClock{now: time.Now()}
	w := NewWorkspaceWithClock(store, 0, clock)

	entry, err := w.StoreIntermediateResult(context.Background(), types.WorkspaceParams{
		SessionID:  "s",
		Kind:       "k",
		Content:    "c",
		TTLSeconds: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, clock.now.Add(time.Minute), entry.ExpiresAt)
}

func TestStoreIntermediateResultInvalidParent(t *testing.T) {
	w := NewWorkspaceWithClock(&fakeWorkspaceStore{}, 0, &fakeClock{now: time.Now()})

	_, err := w.StoreIntermediateResult(context.Background(), types.WorkspaceParams{
		SessionID: "s",
		Kind:      "k",
		Content:   "c",
		ParentID:  "not-a-uuid",
	})
	assert.Error(t, err)
}

func TestWorkspaceChaining(t *testing.T) {
	store := &fakeWorkspaceStore{}
	clock := &fakeClock{now: time.Now()}
	w := NewWorkspaceWithClock(store, 0, clock)
	ctx := context.Background()

	parent, err := w.StoreIntermediateResult(ctx, types.WorkspaceParams{
		SessionID: "s", Kind: "step", Content: "first",
	})
	require.NoError(t, err)

	child, err := w.StoreIntermediateResult(ctx, types.WorkspaceParams{
		SessionID: "s", Kind: "step", Content: "second", ParentID: parent.ID.String(),
	})
	require.NoError(t, err)

	children, err := w.GetChildResults(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	session, err := w.GetSessionResults(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, session, 2)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	store := &fakeWorkspaceStore{}
	clock := &fakeClock{now: time.Now()}
	w := NewWorkspaceWithClock(store, time.Hour, clock)
	ctx := context.Background()

	_, err := w.StoreIntermediateResult(ctx, types.WorkspaceParams{
		SessionID: "s", Kind: "k", Content: "short lived", TTLSeconds: 10,
	})
	require.NoError(t, err)
	_, err = w.StoreIntermediateResult(ctx, types.WorkspaceParams{
		SessionID: "s", Kind: "k", Content: "long lived",
	})
	require.NoError(t, err)

	// nothing expired yet
	removed, err := w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	clock.now = clock.now.Add(30 * time.Second)
	removed, err = w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	session, err := w.GetSessionResults(ctx, "s")
	require.NoError(t, err)
	require.Len(t, session, 1)
	assert.Equal(t, "long lived", session[0].Content)
}

func TestRenderCombinedContentDeterministic(t *testing.T) {
	overview := &types.DocumentOverview{
		Summary:       "A contract between two parties.",
		TopicTags:     []string{"contract", "payment"},
		TotalSections: 4,
		TotalTokens:   1200,
		PageCount:     3,
	}
	sections := []types.SectionWithCost{{
		StructureNode: types.StructureNode{
			Path: "1.2", Title: "Payment Terms", SemanticType: "section",
			StartPage: 2, EndPage: 2, Content: "Net 30 days.",
		},
		CumulativeTokens: 40,
	}}
	previews := []string{"payment is due within"}

	first := RenderCombinedContent(overview, previews, sections)
	second := RenderCombinedContent(overview, previews, sections)
	assert.Equal(t, first, second)

	assert.Contains(t, first, "=== Document Overview ===")
	assert.Contains(t, first, "A contract between two parties.")
	assert.Contains(t, first, "Topics: contract, payment")
	assert.Contains(t, first, "Sections: 4, Tokens: 1200, Pages: 3")
	assert.Contains(t, first, "=== Keyword Preview ===")
	assert.Contains(t, first, "- payment is due within")
	assert.Contains(t, first, "[Page 2-2 | section | 1.2] Payment Terms")
	assert.Contains(t, first, "Net 30 days.")

	bare := RenderCombinedContent(nil, nil, nil)
	assert.Empty(t, bare)
}
