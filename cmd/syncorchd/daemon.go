package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/internal/config"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/orchestrator"
	"vibesync.dev/syncorch/reconciler"
	"vibesync.dev/syncorch/runtime"
)

func projectCode(s string) model.ProjectCode { return model.ProjectCode(s) }

// daemon implements controlplane.Dispatcher, translating every
// control-plane command into a call against the already-wired
// orchestrator/reconciler/runner/memory collaborators.
type daemon struct {
	cfg config.Config

	orch          *orchestrator.Orchestrator
	orchScheduler *orchestrator.Scheduler
	recon         *reconciler.Reconciler
	runner        *runtime.Runner
	memory        adapters.MemorySinkAdapter
	logger        *logrus.Entry

	mu          sync.Mutex
	schedCancel context.CancelFunc
}

func newDaemon(cfg config.Config, orch *orchestrator.Orchestrator, orchScheduler *orchestrator.Scheduler, recon *reconciler.Reconciler, runner *runtime.Runner, memory adapters.MemorySinkAdapter, logger *logrus.Entry) *daemon {
	return &daemon{
		cfg:           cfg,
		orch:          orch,
		orchScheduler: orchScheduler,
		recon:         recon,
		runner:        runner,
		memory:        memory,
		logger:        logger,
	}
}

func (d *daemon) log() *logrus.Entry {
	if d.logger == nil {
		return logrus.NewEntry(logrus.StandardLogger()).WithField("component", "dispatcher")
	}
	return d.logger
}

// FullSyncNow starts a fresh orchestrator run detached from any
// schedule (spec §6 "full sync now").
func (d *daemon) FullSyncNow(ctx context.Context) (string, error) {
	workflowID := fmt.Sprintf("full-sync-%d", time.Now().UnixNano())
	h := d.runner.Start(context.Background(), runtime.StartOptions{WorkflowID: workflowID}, d.orch.Run, orchestrator.Input{})
	if h == nil {
		return "", fmt.Errorf("syncorchd: failed to start full sync")
	}
	return workflowID, nil
}

// Reconcile runs one reconciliation sweep synchronously (spec §6
// "reconcile"); reconciliation is a single bounded pass, not a tracked
// workflow, so it has no workflow id to return.
func (d *daemon) Reconcile(ctx context.Context, project, action string, dryRun bool) (map[string]interface{}, error) {
	in := reconciler.Input{
		Project: projectCode(project),
		Action:  reconciler.ActionMarkDeleted,
		DryRun:  dryRun,
	}
	if action == string(reconciler.ActionHardDelete) {
		in.Action = reconciler.ActionHardDelete
	}

	result, err := d.recon.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"rows_scanned": result.RowsScanned,
		"stale":        len(result.StaleIDs),
		"marked":       result.Marked,
		"deleted":      result.Deleted,
	}, nil
}

// StartScheduled begins the recurring orchestrator sweep (spec §6
// "start scheduled sync"); a second call while already running is a
// no-op.
func (d *daemon) StartScheduled(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startScheduledLocked(context.Background())
	return nil
}

// StopScheduled halts the recurring sweep (spec §6 "stop scheduled
// sync"); a call while already stopped is a no-op.
func (d *daemon) StopScheduled(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopScheduledLocked()
	return nil
}

func (d *daemon) startScheduledLocked(parent context.Context) {
	if d.schedCancel != nil {
		return
	}
	schedCtx, cancel := context.WithCancel(parent)
	d.schedCancel = cancel
	go d.orchScheduler.Run(schedCtx)
}

func (d *daemon) stopScheduledLocked() {
	if d.schedCancel == nil {
		return
	}
	d.schedCancel()
	d.schedCancel = nil
}

// Progress answers the "progress" query against the tracked workflow
// with the given id (spec §6 "get progress"). An id the runner does not
// track, including "", is an error.
func (d *daemon) Progress(ctx context.Context, workflowID string) (map[string]interface{}, error) {
	h, ok := d.runner.Lookup(workflowID)
	if !ok {
		return nil, fmt.Errorf("syncorchd: no workflow %q", workflowID)
	}
	raw, err := h.Query("progress")
	if err != nil {
		return nil, err
	}
	progress, ok := raw.(orchestrator.Progress)
	if !ok {
		return map[string]interface{}{"status": string(h.Status())}, nil
	}
	return map[string]interface{}{
		"status":             progress.Status,
		"current_project":    string(progress.CurrentProject),
		"projects_total":     progress.ProjectsTotal,
		"projects_completed": progress.ProjectsCompleted,
		"issues_synced":      progress.IssuesSynced,
		"errors":             progress.Errors,
		"elapsed_ms":         progress.ElapsedMs,
	}, nil
}

// ListRecent reports every workflow the runner still tracks (spec §6
// "list recent workflows").
func (d *daemon) ListRecent(ctx context.Context) ([]map[string]interface{}, error) {
	return summariesToMaps(d.runner.List()), nil
}

// ListFailed filters ListRecent down to failed runs (spec §6 "list
// failed").
func (d *daemon) ListFailed(ctx context.Context) ([]map[string]interface{}, error) {
	var out []runtime.Summary
	for _, s := range d.runner.List() {
		if s.Status == runtime.StatusFailed {
			out = append(out, s)
		}
	}
	return summariesToMaps(out), nil
}

// Cancel signals a workflow to stop at its next checkpoint (spec §6
// "cancel by id").
func (d *daemon) Cancel(ctx context.Context, workflowID string) error {
	h, ok := d.runner.Lookup(workflowID)
	if !ok {
		return fmt.Errorf("syncorchd: no workflow %q", workflowID)
	}
	h.Signal(orchestrator.CancelSignal, nil)
	return nil
}

// ProvisionAgents is the best-effort memory-store side channel spec §6
// names; it never fails the caller (mirrors pipeline.go's runInit,
// which treats memory-sink updates the same way).
func (d *daemon) ProvisionAgents(ctx context.Context, project, agentID string) error {
	if err := d.memory.UpdateBlock(ctx, agentID, "provisioned_for_project", project); err != nil {
		d.log().WithError(err).WithField("project", project).Warn("agent provisioning best-effort call failed")
	}
	return nil
}

func summariesToMaps(in []runtime.Summary) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(in))
	for _, s := range in {
		entry := map[string]interface{}{
			"workflow_id": s.WorkflowID,
			"status":      string(s.Status),
		}
		if s.Err != "" {
			entry["error"] = s.Err
		}
		out = append(out, entry)
	}
	return out
}
