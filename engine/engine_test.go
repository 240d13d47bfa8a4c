package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/syncstate"
)

// fakeDocs is a DocsAdapter test double whose GetTask/UpsertTask are
// scripted per test.
type fakeDocs struct {
	adapters.NullDocs
	getTask    func(ctx context.Context, id string) (adapters.DocsTaskItem, error)
	upserted   []adapters.DocsTaskItem
	upsertErr  error
}

func (f *fakeDocs) GetTask(ctx context.Context, id string) (adapters.DocsTaskItem, error) {
	if f.getTask != nil {
		return f.getTask(ctx, id)
	}
	return adapters.DocsTaskItem{}, nil
}

func (f *fakeDocs) UpsertTask(ctx context.Context, item adapters.DocsTaskItem) (adapters.DocsTaskItem, error) {
	if f.upsertErr != nil {
		return adapters.DocsTaskItem{}, f.upsertErr
	}
	f.upserted = append(f.upserted, item)
	return item, nil
}

func newTestStore(t *testing.T) syncstate.Store {
	t.Helper()
	store, err := syncstate.OpenBoltStore(filepath.Join(t.TempDir(), "syncstate.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func seedRow(t *testing.T, store syncstate.Store, id model.CanonicalID, trackerAt, docsAt time.Time) {
	t.Helper()
	_, err := store.Upsert(context.Background(), model.SyncStateUpdate{
		CanonicalID:       id,
		Project:           id.Project(),
		TrackerModifiedAt: &trackerAt,
		DocsModifiedAt:    &docsAt,
	})
	require.NoError(t, err)
}

// Scenario 1 (spec §8): Docs was modified 4.5s after the incoming
// Tracker change (the stored row and the live probe agree on it); the
// incoming Tracker change loses.
func TestSync_ConflictDocsNewer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Unix(100, 0)
	seedRow(t, store, "ACME-7", base, base.Add(5*time.Second))

	docs := &fakeDocs{getTask: func(ctx context.Context, id string) (adapters.DocsTaskItem, error) {
		return adapters.DocsTaskItem{ID: id, ModifiedAt: base.Add(5 * time.Second).Unix()}, nil
	}}

	e := &Engine{Tracker: adapters.NullTracker{}, RepoLog: adapters.NullRepoLog{}, Docs: docs, Store: store}

	result, err := e.Sync(ctx, Input{
		Source:    model.SystemTracker,
		Item:      model.WorkItem{ID: "ACME-7", ModifiedAt: base.Add(500 * time.Millisecond)},
		Project:   "ACME",
		LinkedIDs: model.LinkedIDs{DocsTaskID: "docs-1"},
	})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.False(t, result.SourceWon)
	assert.Equal(t, model.SystemDocs, result.Winner)
	assert.Empty(t, docs.upserted, "conflicting change must not propagate")
}

// Scenario 2 (spec §8): stored Docs timestamp old enough that the fast
// path short-circuits the live probe entirely.
func TestSync_FastPathSkipsProbe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Unix(100000, 0)
	seedRow(t, store, "ACME-7", base, base)

	probed := false
	docs := &fakeDocs{getTask: func(ctx context.Context, id string) (adapters.DocsTaskItem, error) {
		probed = true
		return adapters.DocsTaskItem{}, nil
	}}

	e := &Engine{Tracker: adapters.NullTracker{}, RepoLog: adapters.NullRepoLog{}, Docs: docs, Store: store}

	result, err := e.Sync(ctx, Input{
		Source:    model.SystemTracker,
		Item:      model.WorkItem{ID: "ACME-7", ModifiedAt: base.Add(1500 * time.Millisecond), Status: "Todo"},
		Project:   "ACME",
		LinkedIDs: model.LinkedIDs{DocsTaskID: "docs-1"},
	})
	require.NoError(t, err)
	assert.True(t, result.SourceWon)
	assert.False(t, probed, "fast path must skip the live adapter probe")
	assert.Contains(t, result.PropagatedTo, model.SystemDocs)

	row, ok, err := store.Get(ctx, "ACME-7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.TrackerModifiedAt.Equal(base.Add(1500*time.Millisecond)))
}

func TestSync_NoCounterpartShortCircuits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := &fakeDocs{}
	e := &Engine{Tracker: adapters.NullTracker{}, RepoLog: adapters.NullRepoLog{}, Docs: docs, Store: store}

	result, err := e.Sync(ctx, Input{
		Source:  model.SystemTracker,
		Item:    model.WorkItem{ID: "ACME-9", ModifiedAt: time.Now()},
		Project: "ACME",
	})
	require.NoError(t, err)
	assert.True(t, result.SourceWon)
	assert.Contains(t, result.PropagatedTo, model.SystemDocs)
	assert.Len(t, docs.upserted, 1)
}

func TestSync_AdapterErrorFallsBackToSourceWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Unix(100, 0)
	seedRow(t, store, "ACME-7", base, base)

	docs := &fakeDocs{getTask: func(ctx context.Context, id string) (adapters.DocsTaskItem, error) {
		return adapters.DocsTaskItem{}, assertErr{}
	}}
	e := &Engine{Tracker: adapters.NullTracker{}, RepoLog: adapters.NullRepoLog{}, Docs: docs, Store: store}

	result, err := e.Sync(ctx, Input{
		Source:    model.SystemTracker,
		Item:      model.WorkItem{ID: "ACME-7", ModifiedAt: base.Add(200 * time.Millisecond)},
		Project:   "ACME",
		LinkedIDs: model.LinkedIDs{DocsTaskID: "docs-1"},
	})
	require.NoError(t, err)
	assert.True(t, result.SourceWon, "adapter error must fall back to source-wins (availability over strict correctness)")
}

type assertErr struct{}

func (assertErr) Error() string { return "adapter unavailable" }
