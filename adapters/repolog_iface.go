package adapters

import (
	"context"

	"vibesync.dev/syncorch/model"
)

// RepoLogAdapter is the capability interface for the filesystem-backed
// per-repo issue log (spec §6).
type RepoLogAdapter interface {
	Init(ctx context.Context, repoPath string, project model.ProjectCode) error
	ListIssues(ctx context.Context, repoPath string) ([]model.WorkItem, error)
	GetIssue(ctx context.Context, id string, repoPath string) (model.WorkItem, error)
	Upsert(ctx context.Context, repoPath string, item model.WorkItem) (model.WorkItem, error)
	Commit(ctx context.Context, repoPath string, message string) error
	ResolveRepoPath(ctx context.Context, project model.ProjectCode) (string, error)
}

// NullRepoLog is a no-op RepoLogAdapter for tests.
type NullRepoLog struct{}

func (NullRepoLog) Init(ctx context.Context, repoPath string, project model.ProjectCode) error {
	return nil
}
func (NullRepoLog) ListIssues(ctx context.Context, repoPath string) ([]model.WorkItem, error) {
	return nil, nil
}
func (NullRepoLog) GetIssue(ctx context.Context, id string, repoPath string) (model.WorkItem, error) {
	return model.WorkItem{}, nil
}
func (NullRepoLog) Upsert(ctx context.Context, repoPath string, item model.WorkItem) (model.WorkItem, error) {
	return item, nil
}
func (NullRepoLog) Commit(ctx context.Context, repoPath string, message string) error { return nil }
func (NullRepoLog) ResolveRepoPath(ctx context.Context, project model.ProjectCode) (string, error) {
	return "", nil
}
