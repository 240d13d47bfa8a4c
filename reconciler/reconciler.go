// Package reconciler implements the Reconciler (C8, spec §4.7): a sweep
// that finds SyncState rows whose RepoLog counterpart has disappeared
// and optionally marks or deletes them.
package reconciler

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/internal/errkind"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/syncstate"
)

// Action is what to do with a row whose RepoLog counterpart is stale.
type Action string

const (
	ActionMarkDeleted Action = "mark_deleted"
	ActionHardDelete  Action = "hard_delete"
)

// Input selects the scope and action of one reconciliation run.
type Input struct {
	// Project restricts the sweep to a single project; empty means every
	// project the store knows about.
	Project model.ProjectCode
	Action  Action
	// DryRun reports what would happen without calling any mutating
	// store method.
	DryRun bool
}

// Result is the sweep's outcome.
type Result struct {
	RowsScanned int
	StaleIDs    []model.CanonicalID
	Marked      int
	Deleted     int
}

// Reconciler sweeps the sync-state store looking for rows whose
// recorded RepoLog id no longer resolves to a real item.
type Reconciler struct {
	Store   syncstate.Store
	RepoLog adapters.RepoLogAdapter
	Logger  *logrus.Entry
}

func (r *Reconciler) logger() *logrus.Entry {
	if r.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger()).WithField("component", "reconciler")
	}
	return r.Logger
}

// Run executes one reconciliation sweep (spec §4.7). It is a plain
// function rather than a runtime.WorkflowFunc: a sweep is a single
// bounded pass over already-persisted state, not a long-running process
// that needs continue-as-new checkpointing.
func (r *Reconciler) Run(ctx context.Context, in Input) (Result, error) {
	projects, err := r.projectsToScan(ctx, in.Project)
	if err != nil {
		return Result{}, fmt.Errorf("reconciler: list projects: %w", err)
	}

	var result Result
	for _, project := range projects {
		rows, err := r.Store.ListByProject(ctx, project)
		if err != nil {
			return result, fmt.Errorf("reconciler: list rows for %s: %w", project, err)
		}
		result.RowsScanned += len(rows)

		repoPath, err := r.RepoLog.ResolveRepoPath(ctx, project)
		if err != nil {
			r.logger().WithError(err).WithField("project", project).Warn("could not resolve repo path, skipping project")
			continue
		}

		for _, row := range rows {
			if row.RepoLogID == "" {
				continue
			}
			stale, err := r.isStale(ctx, row.RepoLogID, repoPath)
			if err != nil {
				r.logger().WithError(err).WithField("canonical_id", row.CanonicalID).Warn("could not confirm repolog counterpart, leaving row alone")
				continue
			}
			if !stale {
				continue
			}

			result.StaleIDs = append(result.StaleIDs, row.CanonicalID)
			if in.DryRun {
				continue
			}

			if err := r.apply(ctx, in.Action, row.CanonicalID); err != nil {
				return result, fmt.Errorf("reconciler: apply %s to %s: %w", in.Action, row.CanonicalID, err)
			}
			if in.Action == ActionHardDelete {
				result.Deleted++
			} else {
				result.Marked++
			}
		}
	}

	return result, nil
}

func (r *Reconciler) projectsToScan(ctx context.Context, filter model.ProjectCode) ([]model.ProjectCode, error) {
	if filter != "" {
		return []model.ProjectCode{filter}, nil
	}
	return r.Store.ListProjects(ctx)
}

func (r *Reconciler) isStale(ctx context.Context, repoLogID, repoPath string) (bool, error) {
	_, err := r.RepoLog.GetIssue(ctx, repoLogID, repoPath)
	if err == nil {
		return false, nil
	}
	if errkind.KindOf(err) == errkind.NotFound {
		return true, nil
	}
	return false, err
}

func (r *Reconciler) apply(ctx context.Context, action Action, id model.CanonicalID) error {
	switch action {
	case ActionHardDelete:
		return r.Store.HardDelete(ctx, id)
	default:
		return r.Store.MarkDeleted(ctx, id, model.DeleteScopeRow)
	}
}
