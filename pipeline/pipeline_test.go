package pipeline

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
	"vibesync.dev/syncorch/runtime"
	"vibesync.dev/syncorch/syncstate"
)

type fakeTracker struct {
	adapters.NullTracker
	issues map[model.ProjectCode][]model.WorkItem
	nextID int
}

func (f *fakeTracker) ListIssuesBulk(ctx context.Context, projects []model.ProjectCode, limit int) (map[model.ProjectCode][]model.WorkItem, error) {
	return f.issues, nil
}

func (f *fakeTracker) CreateIssue(ctx context.Context, item model.WorkItem) (model.WorkItem, error) {
	f.nextID++
	item.ID = model.CanonicalID("ACME-" + itoa(f.nextID))
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
	items []model.WorkItem
}

func (f *fakeRepoLog) ListIssues(ctx context.Context, repoPath string) ([]model.WorkItem, error) {
	return f.items, nil
}

func (f *fakeRepoLog) Upsert(ctx context.Context, repoPath string, item model.WorkItem) (model.WorkItem, error) {
	return item, nil
}

type fakeDocs struct {
	adapters.NullDocs
	tasks   map[string]adapters.DocsTaskItem
	counter int
}

func (f *fakeDocs) ListTasks(ctx context.Context, project model.ProjectCode) ([]adapters.DocsTaskItem, error) {
	out := make([]adapters.DocsTaskItem, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeDocs) UpsertTask(ctx context.Context, item adapters.DocsTaskItem) (adapters.DocsTaskItem, error) {
	if item.ID == "" {
		f.counter++
		item.ID = "docs-" + itoa(f.counter)
	}
	if f.tasks == nil {
		f.tasks = make(map[string]adapters.DocsTaskItem)
	}
	f.tasks[item.ID] = item
	return item, nil
}

func newTestStore(t *testing.T) syncstate.Store {
	t.Helper()
	store, err := syncstate.OpenBoltStore(filepath.Join(t.TempDir(), "syncstate.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestPipeline_RunsToCompletionWithNoOptionalPhases(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := &fakeTracker{issues: map[model.ProjectCode][]model.WorkItem{
		"ACME": {{ID: "ACME-1", Title: "A", Status: "Todo", ModifiedAt: time.Now()}},
	}}
	repoLog := &fakeRepoLog{}
	docs := &fakeDocs{}
	eng := &engine.Engine{Tracker: tracker, RepoLog: repoLog, Docs: docs, Store: store}

	p := &Pipeline{Tracker: tracker, RepoLog: repoLog, Docs: docs, Store: store, Engine: eng}

	result, err := p.Run(ctx, Input{Project: "ACME"})
	require.NoError(t, err)
	r := result.(Result)
	assert.True(t, r.Success)
	assert.Empty(t, r.Errors)
}

func TestPipeline_Phase1SyncsTrackerIntoDocs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := &fakeTracker{issues: map[model.ProjectCode][]model.WorkItem{
		"ACME": {
			{ID: "ACME-1", Title: "Parent", Status: "Todo", ModifiedAt: time.Now()},
			{ID: "ACME-2", Title: "Child", Parent: "ACME-1", Status: "Todo", ModifiedAt: time.Now()},
		},
	}}
	repoLog := &fakeRepoLog{}
	docs := &fakeDocs{}
	eng := &engine.Engine{Tracker: tracker, RepoLog: repoLog, Docs: docs, Store: store}

	p := &Pipeline{Tracker: tracker, RepoLog: repoLog, Docs: docs, Store: store, Engine: eng, Config: Config{DocsEnabled: true}}

	result, err := p.Run(ctx, Input{Project: "ACME"})
	require.NoError(t, err)
	r := result.(Result)
	assert.True(t, r.Success)
	assert.Len(t, docs.tasks, 2)

	row, ok, err := store.Get(ctx, "ACME-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, row.DocsTaskID)
}

func TestPipeline_ContinueAsNewWhenBatchCapHit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := &fakeTracker{issues: map[model.ProjectCode][]model.WorkItem{
		"ACME": {
			{ID: "ACME-1", Title: "One", Status: "Todo", ModifiedAt: time.Now()},
			{ID: "ACME-2", Title: "Two", Status: "Todo", ModifiedAt: time.Now()},
			{ID: "ACME-3", Title: "Three", Status: "Todo", ModifiedAt: time.Now()},
		},
	}}
	repoLog := &fakeRepoLog{}
	docs := &fakeDocs{}
	eng := &engine.Engine{Tracker: tracker, RepoLog: repoLog, Docs: docs, Store: store}

	p := &Pipeline{
		Tracker: tracker, RepoLog: repoLog, Docs: docs, Store: store, Engine: eng,
		Config: Config{DocsEnabled: true, BatchSize: 1},
	}

	_, err := p.Run(ctx, Input{Project: "ACME"})
	require.Error(t, err)

	sig, ok := runtime.AsContinueAsNew(err)
	require.True(t, ok, "expected a continue-as-new signal when batch cap is hit mid-phase")

	next := sig.NextInput.(Input)
	assert.Equal(t, Phase1, next.Phase)
	assert.Equal(t, 1, next.Cursor)
}

func TestPipeline_Phase3PersistsRepoLogRowsViaBatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := &fakeTracker{issues: map[model.ProjectCode][]model.WorkItem{
		"ACME": {
			{ID: "ACME-1", Title: "One", Status: "Todo", ModifiedAt: time.Now()},
			{ID: "ACME-2", Title: "Two", Status: "Todo", ModifiedAt: time.Now()},
		},
	}}
	repoLog := &fakeRepoLog{}
	docs := &fakeDocs{}
	eng := &engine.Engine{Tracker: tracker, RepoLog: repoLog, Docs: docs, Store: store}

	p := &Pipeline{Tracker: tracker, RepoLog: repoLog, Docs: docs, Store: store, Engine: eng}

	result, err := p.Run(ctx, Input{Project: "ACME", RepoPath: "/repo"})
	require.NoError(t, err)
	r := result.(Result)
	assert.True(t, r.Success)

	for _, id := range []model.CanonicalID{"ACME-1", "ACME-2"} {
		row, ok, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, id.String(), row.RepoLogID)
	}
}

func TestPipeline_RunViaRunnerDrainsContinueAsNew(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := &fakeTracker{issues: map[model.ProjectCode][]model.WorkItem{
		"ACME": {
			{ID: "ACME-1", Title: "One", Status: "Todo", ModifiedAt: time.Now()},
			{ID: "ACME-2", Title: "Two", Status: "Todo", ModifiedAt: time.Now()},
		},
	}}
	repoLog := &fakeRepoLog{}
	docs := &fakeDocs{}
	eng := &engine.Engine{Tracker: tracker, RepoLog: repoLog, Docs: docs, Store: store}

	p := &Pipeline{
		Tracker: tracker, RepoLog: repoLog, Docs: docs, Store: store, Engine: eng,
		Config: Config{DocsEnabled: true, BatchSize: 1},
	}

	runner := runtime.NewRunner(nil)
	result, err := runner.RunChild(ctx, runtime.StartOptions{}, p.Run, Input{Project: "ACME"})
	require.NoError(t, err)
	r := result.(Result)
	assert.True(t, r.Success)
	assert.Len(t, docs.tasks, 2)
}
