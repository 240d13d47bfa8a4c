package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/internal/config"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/orchestrator"
	"vibesync.dev/syncorch/reconciler"
	"vibesync.dev/syncorch/runtime"
	"vibesync.dev/syncorch/syncstate"
)

type fakeTracker struct {
	adapters.NullTracker
	projects []model.Project
}

func (f *fakeTracker) ListProjects(ctx context.Context) ([]model.Project, error) {
	return f.projects, nil
}

type recordingMemory struct {
	updated []string
	err     error
}

func (m *recordingMemory) UpdateBlock(ctx context.Context, agentID, label, value string) error {
	m.updated = append(m.updated, agentID+"/"+label+"/"+value)
	return m.err
}

func newTestDaemon(t *testing.T) (*daemon, *runtime.Runner) {
	t.Helper()
	store, err := syncstate.OpenBoltStore(t.TempDir() + "/state.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tracker := &fakeTracker{}
	runner := runtime.NewRunner(nil)
	orch := &orchestrator.Orchestrator{
		Tracker: tracker,
		Runner:  runner,
		PipelineFn: func(ctx context.Context, input any) (any, error) {
			return nil, nil
		},
	}
	orchScheduler := &orchestrator.Scheduler{Orchestrator: orch, Config: orchestrator.SchedulerConfig{Interval: time.Hour}}
	recon := &reconciler.Reconciler{Store: store, RepoLog: adapters.NullRepoLog{}}
	memory := &recordingMemory{}

	d := newDaemon(config.Config{}, orch, orchScheduler, recon, runner, memory, nil)
	return d, runner
}

func TestFullSyncNowStartsATrackedWorkflow(t *testing.T) {
	d, runner := newTestDaemon(t)

	id, err := d.FullSyncNow(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	deadline := time.Now().Add(time.Second)
	for {
		h, ok := runner.Lookup(id)
		require.True(t, ok)
		if h.Status() != runtime.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("workflow never settled")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestProgressUnknownWorkflowIsNotFound(t *testing.T) {
	d, _ := newTestDaemon(t)
	_, err := d.Progress(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestCancelUnknownWorkflowIsNotFound(t *testing.T) {
	d, _ := newTestDaemon(t)
	err := d.Cancel(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestListRecentReflectsRunnerState(t *testing.T) {
	d, runner := newTestDaemon(t)
	runner.Start(context.Background(), runtime.StartOptions{WorkflowID: "wf-a"}, func(ctx context.Context, input any) (any, error) {
		return "ok", nil
	}, nil)

	deadline := time.Now().Add(time.Second)
	for {
		recent, err := d.ListRecent(context.Background())
		require.NoError(t, err)
		found := false
		for _, r := range recent {
			if r["workflow_id"] == "wf-a" && r["status"] == "completed" {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("wf-a never completed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestProvisionAgentsBestEffortNeverFails(t *testing.T) {
	d, _ := newTestDaemon(t)
	d.memory.(*recordingMemory).err = errors.New("memory store unreachable")

	err := d.ProvisionAgents(context.Background(), "ACME", "agent-1")
	require.NoError(t, err)
}

func TestStartStopScheduledIsIdempotent(t *testing.T) {
	d, _ := newTestDaemon(t)

	require.NoError(t, d.StartScheduled(context.Background()))
	require.NoError(t, d.StartScheduled(context.Background()))
	require.NoError(t, d.StopScheduled(context.Background()))
	require.NoError(t, d.StopScheduled(context.Background()))
}
