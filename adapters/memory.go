package adapters

import "context"

// MemorySinkAdapter is the best-effort memory-store agent service
// collaborator (spec §6). Failures here must never block or fail a sync
// workflow — callers should log and continue, never propagate the error
// as a workflow failure.
type MemorySinkAdapter interface {
	UpdateBlock(ctx context.Context, agentID, label, value string) error
}

// NullMemorySink is a no-op MemorySinkAdapter for tests and for
// deployments with no memory-store agent configured.
type NullMemorySink struct{}

func (NullMemorySink) UpdateBlock(ctx context.Context, agentID, label, value string) error {
	return nil
}

// MetricsSinkAdapter is the metrics-sink collaborator the orchestrator
// emits completion metrics through (spec §4.6, explicitly out of scope
// per spec §1 as an implementation but still called from C7).
type MetricsSinkAdapter interface {
	RecordSyncRun(ctx context.Context, projectsProcessed, issuesSynced int, durationMs int64, errors int)
}

// NullMetricsSink discards everything.
type NullMetricsSink struct{}

func (NullMetricsSink) RecordSyncRun(ctx context.Context, projectsProcessed, issuesSynced int, durationMs int64, errors int) {
}
