package docssse

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/runtime"
)

type fakeDocs struct {
	adapters.NullDocs
	tasks map[string]adapters.DocsTaskItem
}

func (f *fakeDocs) GetTask(ctx context.Context, id string) (adapters.DocsTaskItem, error) {
	return f.tasks[id], nil
}

func TestProcessBatch_DispatchesChildSyncPerID(t *testing.T) {
	ctx := context.Background()

	docs := &fakeDocs{tasks: map[string]adapters.DocsTaskItem{
		"task-1": {ID: "task-1", Title: "Write docs", ModifiedAt: time.Now().Unix()},
		"task-2": {ID: "task-2", Title: "Review docs", ModifiedAt: time.Now().Unix()},
	}}

	var dispatched []SyncInput
	syncFn := func(ctx context.Context, input any) (any, error) {
		dispatched = append(dispatched, input.(SyncInput))
		return nil, nil
	}

	runner := runtime.NewRunner(logrus.NewEntry(logrus.StandardLogger()))
	ing := &Ingester{Docs: docs, Runner: runner, SyncFn: syncFn}

	err := ing.ProcessBatch(ctx, "ACME", []string{"task-1", "task-2"})
	require.NoError(t, err)

	require.Len(t, dispatched, 2)
	assert.Equal(t, model.ProjectCode("ACME"), dispatched[0].Project)
	assert.Equal(t, "task-1", dispatched[0].Item.ID)
	assert.Equal(t, "task-2", dispatched[1].Item.ID)
}

func TestProcessBatch_SkipsFailedFetchAndContinues(t *testing.T) {
	ctx := context.Background()

	docs := &fakeDocs{tasks: map[string]adapters.DocsTaskItem{
		"task-2": {ID: "task-2", Title: "Still here"},
	}}

	var dispatched []SyncInput
	syncFn := func(ctx context.Context, input any) (any, error) {
		dispatched = append(dispatched, input.(SyncInput))
		return nil, nil
	}

	runner := runtime.NewRunner(nil)
	ing := &Ingester{Docs: docs, Runner: runner, SyncFn: syncFn}

	err := ing.ProcessBatch(ctx, "ACME", []string{"task-1", "task-2"})
	require.NoError(t, err)
	require.Len(t, dispatched, 2, "a missing task fetches as a zero-value item, not a hard failure")
}

func TestProcessBatch_CancelledContextStopsBeforeNextItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs := &fakeDocs{tasks: map[string]adapters.DocsTaskItem{}}
	runner := runtime.NewRunner(nil)
	ing := &Ingester{Docs: docs, Runner: runner, SyncFn: func(ctx context.Context, input any) (any, error) {
		return nil, nil
	}}

	err := ing.ProcessBatch(ctx, "ACME", []string{"task-1"})
	assert.ErrorIs(t, err, context.Canceled)
}
