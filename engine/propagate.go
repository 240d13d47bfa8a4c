package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/model"
)

// propagate routes the winning change to its targets per spec §4.3 step
// 5 and reports whether RepoLog was among them (needed by the caller to
// decide whether a commit is due). Each target's failure is recorded
// independently in result.Errors and does not block the others.
func (e *Engine) propagate(ctx context.Context, in Input, result *Result) (repoLogTouched bool) {
	targets := propagationTargets(in)
	for _, target := range targets {
		if err := e.pushTo(ctx, target, in); err != nil {
			result.Errors[target] = err
			continue
		}
		result.PropagatedTo = append(result.PropagatedTo, target)
		if target == model.SystemRepoLog {
			repoLogTouched = true
		}
	}
	return repoLogTouched
}

// propagationTargets implements the per-source routing table (spec
// §4.3 step 5).
func propagationTargets(in Input) []model.System {
	var targets []model.System
	switch in.Source {
	case model.SystemTracker:
		targets = append(targets, model.SystemDocs)
		if in.RepoPath != "" {
			targets = append(targets, model.SystemRepoLog)
		}
	case model.SystemRepoLog:
		if in.LinkedIDs.TrackerID != "" {
			targets = append(targets, model.SystemTracker)
		}
		if in.LinkedIDs.DocsTaskID != "" {
			targets = append(targets, model.SystemDocs)
		}
	case model.SystemDocs:
		if in.LinkedIDs.TrackerID != "" {
			targets = append(targets, model.SystemTracker)
		}
		if in.RepoPath != "" {
			targets = append(targets, model.SystemRepoLog)
		}
	}
	return targets
}

func (e *Engine) pushTo(ctx context.Context, target model.System, in Input) error {
	ctx, span := tracer.Start(ctx, "engine.propagate")
	defer span.End()
	span.SetAttributes(attribute.String("sync.target", string(target)))

	var err error
	switch target {
	case model.SystemTracker:
		err = e.pushToTracker(ctx, in)
	case model.SystemRepoLog:
		err = e.pushToRepoLog(ctx, in)
	case model.SystemDocs:
		err = e.pushToDocs(ctx, in)
	default:
		err = fmt.Errorf("engine: unknown propagation target %q", target)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Engine) pushToTracker(ctx context.Context, in Input) error {
	item := in.Item
	item.RepoLogID = in.LinkedIDs.RepoLogID
	item.DocsTaskID = in.LinkedIDs.DocsTaskID

	if in.LinkedIDs.TrackerID != "" {
		id, err := model.NewCanonicalID(in.LinkedIDs.TrackerID)
		if err != nil {
			return fmt.Errorf("tracker: invalid linked id %q: %w", in.LinkedIDs.TrackerID, err)
		}
		item.ID = id
		_, err = e.Tracker.UpdateIssue(ctx, item)
		return err
	}
	_, err := e.Tracker.CreateIssue(ctx, item)
	return err
}

func (e *Engine) pushToRepoLog(ctx context.Context, in Input) error {
	item := in.Item
	item.TrackerID = in.LinkedIDs.TrackerID
	item.DocsTaskID = in.LinkedIDs.DocsTaskID
	_, err := e.RepoLog.Upsert(ctx, in.RepoPath, item)
	return err
}

func (e *Engine) pushToDocs(ctx context.Context, in Input) error {
	_, err := e.Docs.UpsertTask(ctx, adapters.DocsTaskItem{
		ID:          in.LinkedIDs.DocsTaskID,
		Project:     in.Project,
		Title:       in.Item.Title,
		Description: in.Item.Description,
		Status:      in.Item.Status,
		ModifiedAt:  in.Item.ModifiedAt.Unix(),
	})
	return err
}
