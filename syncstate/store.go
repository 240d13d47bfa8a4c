// Package syncstate provides the durable store for SyncState rows and
// Docs mirror page metadata (spec §4.2): the single source of truth the
// conflict-check fast path, the reconciler, and the Docs mirror all read
// and write through.
package syncstate

import (
	"context"
	"time"

	"vibesync.dev/syncorch/model"
)

// ChangeEvent is emitted by WatchChanges whenever a SyncState row is
// upserted or deleted, so a store-backed cache or UI can stay current
// without polling.
type ChangeEvent struct {
	CanonicalID model.CanonicalID
	Project     model.ProjectCode
	Deleted     bool
	OccurredAt  time.Time
}

// Store is the persistence capability the sync engine, pipeline,
// orchestrator, and reconciler depend on. Implementations: postgres
// (production, supports WatchChanges) and bolt (embedded dev tier,
// WatchChanges is a local fan-out with no cross-process visibility).
type Store interface {
	// Get returns the row for id, or ok=false if no row exists.
	Get(ctx context.Context, id model.CanonicalID) (model.SyncStateRow, bool, error)

	// Upsert applies a partial update (spec §4.2): fields left nil on
	// update are left unchanged on an existing row, or stored as zero
	// values on a newly created one.
	Upsert(ctx context.Context, update model.SyncStateUpdate) (model.SyncStateRow, error)

	// UpsertBatch applies every update in one transaction: all-or-nothing
	// (spec §4.2). Used in place of a per-row Upsert loop anywhere a
	// batch of rows must never be left partially applied by a crash or a
	// continue-as-new boundary landing mid-batch.
	UpsertBatch(ctx context.Context, updates []model.SyncStateUpdate) ([]model.SyncStateRow, error)

	// GetTimestamps is the conflict check's hot path (spec §4.2): it
	// reads only the three per-system modification times, not the full
	// row Get returns.
	GetTimestamps(ctx context.Context, id model.CanonicalID) (model.SyncStateTimestamps, bool, error)

	// GetStateBatch returns every row found among ids, keyed by
	// CanonicalID; an id with no row is simply absent from the result
	// (spec §4.2), used by the project pipeline to avoid a Get-per-item
	// round trip.
	GetStateBatch(ctx context.Context, ids []model.CanonicalID) (map[model.CanonicalID]model.SyncStateRow, error)

	// ListByProject returns every non-deleted row for project, used by
	// the reconciler sweep.
	ListByProject(ctx context.Context, project model.ProjectCode) ([]model.SyncStateRow, error)

	// ListProjects returns every distinct project code with at least
	// one non-deleted row, used by the reconciler when no project filter
	// is given.
	ListProjects(ctx context.Context) ([]model.ProjectCode, error)

	// MarkDeleted flips a row's Deleted flag per scope (spec §4.6).
	MarkDeleted(ctx context.Context, id model.CanonicalID, scope model.DeleteScope) error

	// HardDelete removes the row entirely.
	HardDelete(ctx context.Context, id model.CanonicalID) error

	// WatchChanges streams change notifications until ctx is cancelled.
	WatchChanges(ctx context.Context) (<-chan ChangeEvent, error)

	// DocsPages

	GetDocsPage(ctx context.Context, project model.ProjectCode, localPath string) (model.DocsPage, bool, error)
	UpsertDocsPage(ctx context.Context, page model.DocsPage) error
	ListDocsPages(ctx context.Context, project model.ProjectCode) ([]model.DocsPage, error)

	// SetLastExport records the last time project's Docs book was fully
	// exported (spec §4.2), a project-wide bookkeeping value distinct
	// from any single DocsPage row's own LastExportAt.
	SetLastExport(ctx context.Context, project model.ProjectCode, t time.Time) error

	Close()
}
