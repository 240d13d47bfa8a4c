package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"vibesync.dev/syncorch/model"
)

// decide runs the conflict-check, fast-path, slow-path and decision
// steps (spec §4.3 steps 1-4) and returns whether the source wins, plus
// the winning system and its timestamp for observability.
func (e *Engine) decide(ctx context.Context, in Input, canonicalID string) (sourceWins bool, winner model.System, winnerTS time.Time, err error) {
	ctx, span := tracer.Start(ctx, "engine.decide")
	defer span.End()

	// Step 1: conflict check short-circuit.
	if !in.LinkedIDs.HasCounterpart(in.Source) {
		span.SetAttributes(attribute.String("sync.decision", "no-counterpart"))
		return true, in.Source, in.Item.ModifiedAt, nil
	}

	others := otherSystems(in.Source)

	timestamps, found, err := e.Store.GetTimestamps(ctx, model.CanonicalID(canonicalID))
	if err != nil {
		return false, "", time.Time{}, err
	}

	// Step 2: fast path. Every other system's stored timestamp at least
	// ConflictWindow older than the incoming change means no live probe
	// is needed.
	if found && fastPathWins(timestamps, others, in.Item.ModifiedAt, e.window()) {
		span.SetAttributes(attribute.String("sync.decision", "fast-path"))
		return true, in.Source, in.Item.ModifiedAt, nil
	}

	// Step 3: slow path. Probe each non-source system with a known
	// linked id; an adapter error falls back to sourceWins (availability
	// over strict correctness).
	pairs := []systemTimestamp{{system: in.Source, ts: in.Item.ModifiedAt}}
	for _, sys := range others {
		linkedID := in.LinkedIDs.LinkedIDOf(sys)
		if linkedID == "" {
			continue
		}
		ts, err := e.probe(ctx, sys, linkedID, in.RepoPath)
		if err != nil {
			span.SetAttributes(attribute.String("sync.decision", "adapter-error-fallback"))
			return true, in.Source, in.Item.ModifiedAt, nil
		}
		if !ts.IsZero() {
			pairs = append(pairs, systemTimestamp{system: sys, ts: ts})
		}
	}

	// Step 4: decision. Sort descending; source on top wins outright.
	// Otherwise a delta beyond the window is a conflict (incoming change
	// dropped); within the window the source still wins.
	sortDescending(pairs)
	top := pairs[0]
	if top.system == in.Source {
		span.SetAttributes(attribute.String("sync.decision", "source-wins"))
		return true, in.Source, in.Item.ModifiedAt, nil
	}

	delta := top.ts.Sub(in.Item.ModifiedAt)
	if delta > e.window() {
		span.SetAttributes(attribute.String("sync.decision", "conflict"), attribute.String("sync.winner", string(top.system)))
		return false, top.system, top.ts, nil
	}
	span.SetAttributes(attribute.String("sync.decision", "source-wins-within-window"))
	return true, in.Source, in.Item.ModifiedAt, nil
}

// fastPathWins reports whether every system in others has a stored
// timestamp at least window older than incoming (spec §4.3 step 2).
func fastPathWins(timestamps model.SyncStateTimestamps, others []model.System, incoming time.Time, window time.Duration) bool {
	for _, sys := range others {
		stored := timestamps.TimestampOf(sys)
		if stored.IsZero() {
			continue
		}
		if incoming.Sub(stored) < window {
			return false
		}
	}
	return true
}

// probe reads a non-source system's authoritative modifiedAt via its
// adapter's GetItem-equivalent call.
func (e *Engine) probe(ctx context.Context, system model.System, linkedID string, repoPath string) (time.Time, error) {
	switch system {
	case model.SystemTracker:
		id, err := model.NewCanonicalID(linkedID)
		if err != nil {
			return time.Time{}, err
		}
		item, err := e.Tracker.GetIssue(ctx, id)
		if err != nil {
			return time.Time{}, err
		}
		return item.ModifiedAt, nil
	case model.SystemRepoLog:
		item, err := e.RepoLog.GetIssue(ctx, linkedID, repoPath)
		if err != nil {
			return time.Time{}, err
		}
		return item.ModifiedAt, nil
	case model.SystemDocs:
		task, err := e.Docs.GetTask(ctx, linkedID)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(task.ModifiedAt, 0).UTC(), nil
	default:
		return time.Time{}, nil
	}
}

// otherSystems returns the two systems other than source.
func otherSystems(source model.System) []model.System {
	all := []model.System{model.SystemTracker, model.SystemRepoLog, model.SystemDocs}
	out := make([]model.System, 0, 2)
	for _, s := range all {
		if s != source {
			out = append(out, s)
		}
	}
	return out
}
