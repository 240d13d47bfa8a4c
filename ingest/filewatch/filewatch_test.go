package filewatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/engine"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/syncstate"
)

type fakeTracker struct {
	adapters.NullTracker
	created []model.WorkItem
	nextID  int
}

func (f *fakeTracker) CreateIssue(ctx context.Context, item model.WorkItem) (model.WorkItem, error) {
	f.nextID++
	item.ID = model.CanonicalID("ACME-" + itoa(f.nextID))
	f.created = append(f.created, item)
	return item, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

type fakeRepoLog struct {
	adapters.NullRepoLog
	items    []model.WorkItem
	upserted []model.WorkItem
}

func (f *fakeRepoLog) ListIssues(ctx context.Context, repoPath string) ([]model.WorkItem, error) {
	return f.items, nil
}

func (f *fakeRepoLog) Upsert(ctx context.Context, repoPath string, item model.WorkItem) (model.WorkItem, error) {
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

func TestProcessChangedFiles_AdoptsUnlabeledItem(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := &fakeTracker{}
	repoLog := &fakeRepoLog{items: []model.WorkItem{
		{ID: "", Title: "Fix crash", Status: "open", ModifiedAt: time.Now()},
	}}
	eng := &engine.Engine{Tracker: tracker, RepoLog: repoLog, Docs: adapters.NullDocs{}, Store: store}
	ing := &Ingester{Tracker: tracker, RepoLog: repoLog, Engine: eng, Store: store}

	err := ing.ProcessChangedFiles(ctx, "ACME", "/repos/acme", nil)
	require.NoError(t, err)

	require.Len(t, tracker.created, 1, "unlabeled item should be created in Tracker")
	require.Len(t, repoLog.upserted, 1, "RepoLog item should be rewritten with its new tracker id")

	row, ok, err := store.Get(ctx, "ACME-1")
	require.NoError(t, err)
	require.True(t, ok, "a baseline SyncState row should exist after adoption")
	assert.Equal(t, "ACME-1", row.TrackerID)
}

func TestProcessChangedFiles_FirstSightingRecordsBaselineWithoutSync(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := &fakeTracker{}
	repoLog := &fakeRepoLog{items: []model.WorkItem{
		{ID: "RL-1", TrackerID: "ACME-3", Title: "Already labeled", Status: "in_progress", ModifiedAt: time.Now()},
	}}
	eng := &engine.Engine{Tracker: tracker, RepoLog: repoLog, Docs: adapters.NullDocs{}, Store: store}
	ing := &Ingester{Tracker: tracker, RepoLog: repoLog, Engine: eng, Store: store}

	err := ing.ProcessChangedFiles(ctx, "ACME", "/repos/acme", nil)
	require.NoError(t, err)

	assert.Empty(t, tracker.created, "a labeled item with no SyncState row must not be synced on first sighting")

	row, ok, err := store.Get(ctx, "ACME-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "in_progress", row.RepoLogStatus)
}

func TestProcessChangedFiles_RankGuardRejectsRegression(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Unix(1000, 0)
	_, err := store.Upsert(ctx, model.SyncStateUpdate{
		CanonicalID:       "ACME-5",
		Project:           "ACME",
		Title:             strPtr("Ship it"),
		TrackerStatus:     strPtr("In Progress"),
		RepoLogStatus:     strPtr("in_progress"),
		TrackerModifiedAt: &base,
		RepoLogModifiedAt: &base,
		TrackerID:         strPtr("ACME-5"),
	})
	require.NoError(t, err)

	tracker := &fakeTracker{}
	repoLog := &fakeRepoLog{items: []model.WorkItem{
		// Regression: repo now says "deferred" (-> Backlog, rank 0) while
		// Tracker was already at In Progress (rank 2).
		{ID: "RL-5", TrackerID: "ACME-5", Title: "Ship it", Status: "deferred", ModifiedAt: base.Add(time.Hour)},
	}}
	eng := &engine.Engine{Tracker: tracker, RepoLog: repoLog, Docs: adapters.NullDocs{}, Store: store}
	ing := &Ingester{Tracker: tracker, RepoLog: repoLog, Engine: eng, Store: store}

	err = ing.ProcessChangedFiles(ctx, "ACME", "/repos/acme", nil)
	require.NoError(t, err)

	row, ok, err := store.Get(ctx, "ACME-5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "In Progress", row.TrackerStatus, "rank guard must reject the regressive transition")
}
