// Package adapters defines the capability interfaces the sync
// orchestrator core depends on (spec §6). Implementations are external
// collaborators; the core never imports a concrete Tracker/Docs client.
package adapters

import (
	"context"

	"vibesync.dev/syncorch/model"
)

// TrackerAdapter is the capability interface for the centralized issue
// tracker (spec §6).
type TrackerAdapter interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	ListIssuesBulk(ctx context.Context, projects []model.ProjectCode, limit int) (map[model.ProjectCode][]model.WorkItem, error)
	GetIssue(ctx context.Context, id model.CanonicalID) (model.WorkItem, error)
	CreateIssue(ctx context.Context, item model.WorkItem) (model.WorkItem, error)
	UpdateIssue(ctx context.Context, item model.WorkItem) (model.WorkItem, error)
}

// NullTracker is a no-op TrackerAdapter for tests and for running
// components that don't need a live Tracker connection.
type NullTracker struct{}

func (NullTracker) ListProjects(ctx context.Context) ([]model.Project, error) { return nil, nil }
func (NullTracker) ListIssuesBulk(ctx context.Context, projects []model.ProjectCode, limit int) (map[model.ProjectCode][]model.WorkItem, error) {
	return nil, nil
}
func (NullTracker) GetIssue(ctx context.Context, id model.CanonicalID) (model.WorkItem, error) {
	return model.WorkItem{}, nil
}
func (NullTracker) CreateIssue(ctx context.Context, item model.WorkItem) (model.WorkItem, error) {
	return item, nil
}
func (NullTracker) UpdateIssue(ctx context.Context, item model.WorkItem) (model.WorkItem, error) {
	return item, nil
}
