// Package engine implements the single-item bidirectional sync state
// machine: given a change observed on one system, decide whether it
// wins against the other two systems' last-known state, propagate it to
// whichever of them should receive it, and persist the outcome.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/internal/errkind"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/syncstate"
)

var tracer = otel.Tracer("vibesync.dev/syncorch/engine")

// ConflictWindow is the engine's only numeric knob (spec §4.3 step 4):
// a stored timestamp within this much of the incoming change's
// modifiedAt still loses to the incoming source (first-come semantics).
const ConflictWindow = 1000 * time.Millisecond

// Input is BidirectionalSyncInput (spec §4.3).
type Input struct {
	Source    model.System
	Item      model.WorkItem
	Project   model.ProjectCode
	RepoPath  string // optional; propagation to RepoLog requires this
	LinkedIDs model.LinkedIDs
}

// Result is the outcome of a single Sync call.
type Result struct {
	SourceWon       bool
	Skipped         bool
	Winner          model.System
	WinnerTimestamp time.Time
	PropagatedTo    []model.System
	Errors          map[model.System]error
	PersistedID     model.CanonicalID
}

// Engine runs the sync state machine against the three adapter
// collaborators and the durable SyncState store.
type Engine struct {
	Tracker adapters.TrackerAdapter
	RepoLog adapters.RepoLogAdapter
	Docs    adapters.DocsAdapter
	Store   syncstate.Store

	// Window overrides ConflictWindow; zero means use the default.
	Window time.Duration
}

func (e *Engine) window() time.Duration {
	if e.Window > 0 {
		return e.Window
	}
	return ConflictWindow
}

// systemTimestamp pairs a system with a point-in-time read used by the
// decision step (spec §4.3 step 4).
type systemTimestamp struct {
	system model.System
	ts     time.Time
}

// Sync runs the full state machine for a single item change.
func (e *Engine) Sync(ctx context.Context, in Input) (Result, error) {
	ctx, span := tracer.Start(ctx, "engine.Sync")
	defer span.End()
	span.SetAttributes(
		attribute.String("sync.source", string(in.Source)),
		attribute.String("sync.project", string(in.Project)),
	)

	canonicalID := in.LinkedIDs.TrackerID
	if canonicalID == "" {
		canonicalID = in.Item.ID.String()
	}

	sourceWins, winner, winnerTS, err := e.decide(ctx, in, canonicalID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	result := Result{
		SourceWon:       sourceWins,
		Winner:          winner,
		WinnerTimestamp: winnerTS,
		Errors:          map[model.System]error{},
	}

	if !sourceWins {
		result.Skipped = true
		span.SetAttributes(attribute.Bool("sync.skipped", true), attribute.String("sync.winner", string(winner)))
		return result, nil
	}

	repoLogTouched := e.propagate(ctx, in, &result)

	if repoLogTouched && in.RepoPath != "" {
		msg := fmt.Sprintf("Sync from %s: %s", in.Source, in.Item.Title)
		if err := e.RepoLog.Commit(ctx, in.RepoPath, msg); err != nil {
			result.Errors[model.SystemRepoLog] = fmt.Errorf("commit: %w", err)
		}
	}

	persistedID, err := e.persist(ctx, in, result)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	result.PersistedID = persistedID
	return result, nil
}

// persist resolves the persistence identifier and upserts SyncState
// with every discovered id and the source system's (status, modifiedAt)
// (spec §4.3 step 7).
func (e *Engine) persist(ctx context.Context, in Input, result Result) (model.CanonicalID, error) {
	id := e.resolvePersistenceIdentifier(in)
	if id == "" {
		return "", errkind.Validationf("engine.persist", "no persistence identifier could be resolved for item %q", in.Item.ID)
	}

	update := model.SyncStateUpdate{
		CanonicalID: id,
		Project:     in.Project,
		Title:       strPtr(in.Item.Title),
		Description: strPtr(in.Item.Description),
		Priority:    strPtr(in.Item.Priority),
	}
	now := in.Item.ModifiedAt
	status := in.Item.Status

	switch in.Source {
	case model.SystemTracker:
		update.TrackerID = strPtr(id.String())
		update.TrackerModifiedAt = &now
		update.TrackerStatus = strPtr(status)
	case model.SystemRepoLog:
		update.RepoLogID = strPtr(in.LinkedIDs.RepoLogID)
		update.RepoLogModifiedAt = &now
		update.RepoLogStatus = strPtr(status)
	case model.SystemDocs:
		update.DocsTaskID = strPtr(in.LinkedIDs.DocsTaskID)
		update.DocsModifiedAt = &now
		update.DocsStatus = strPtr(status)
	}
	if in.LinkedIDs.TrackerID != "" {
		update.TrackerID = strPtr(in.LinkedIDs.TrackerID)
	}
	if in.LinkedIDs.RepoLogID != "" {
		update.RepoLogID = strPtr(in.LinkedIDs.RepoLogID)
	}
	if in.LinkedIDs.DocsTaskID != "" {
		update.DocsTaskID = strPtr(in.LinkedIDs.DocsTaskID)
	}

	row, err := e.Store.Upsert(ctx, update)
	if err != nil {
		return "", fmt.Errorf("engine.persist: %w", err)
	}
	return row.CanonicalID, nil
}

// resolvePersistenceIdentifier implements spec §4.3 step 7's fallback
// chain: Tracker id from source, else linkedIds.trackerId, else the
// item's own id, else parsed from the item description's sentinel
// phrases.
func (e *Engine) resolvePersistenceIdentifier(in Input) model.CanonicalID {
	if in.Source == model.SystemTracker && in.Item.ID != "" {
		return in.Item.ID
	}
	if in.LinkedIDs.TrackerID != "" {
		if id, err := model.NewCanonicalID(in.LinkedIDs.TrackerID); err == nil {
			return id
		}
	}
	if in.Item.ID != "" {
		return in.Item.ID
	}
	return model.ExtractTrackerID(in.Item.Description)
}

func strPtr(s string) *string { return &s }

func sortDescending(pairs []systemTimestamp) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ts.After(pairs[j].ts) })
}
