// Package repolog provides a concrete, filesystem-backed RepoLogAdapter.
// Work items are stored as one YAML front-matter file per issue inside a
// ".repolog/issues" directory within the project's git working copy, and
// are committed to that repository's local history on Commit (spec §4.8).
//
// Repository discovery (turning a ProjectCode into a local clone path)
// goes through either a Gitea or a GitLab instance, selected per-project
// by whichever client was configured; a project with no matching remote
// repository falls back to a purely local working copy rooted at
// WorkDir/<project>.
package repolog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	gitea "code.gitea.io/sdk/gitea"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"gopkg.in/yaml.v3"

	"vibesync.dev/syncorch/internal/errkind"
	"vibesync.dev/syncorch/model"
)

// issueFile is the on-disk YAML shape of a single RepoLog issue.
type issueFile struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Status      string   `yaml:"status"`
	Priority    string   `yaml:"priority,omitempty"`
	Parent      string   `yaml:"parent,omitempty"`
	TrackerID   string   `yaml:"tracker_id,omitempty"`
	DocsTaskID  string   `yaml:"docs_task_id,omitempty"`
	Labels      []string `yaml:"labels,omitempty"`
	ModifiedAt  int64    `yaml:"modified_at"`
}

func toIssueFile(item model.WorkItem) issueFile {
	return issueFile{
		ID:          item.ID.String(),
		Title:       item.Title,
		Description: item.Description,
		Status:      item.Status,
		Priority:    item.Priority,
		Parent:      item.Parent.String(),
		TrackerID:   item.TrackerID,
		DocsTaskID:  item.DocsTaskID,
		Labels:      item.Labels,
		ModifiedAt:  item.ModifiedAt.Unix(),
	}
}

// toWorkItem converts a parsed issue file back into a WorkItem. An id or
// parent that isn't a valid "PROJ-N" identifier is dropped rather than
// failing the whole read — RepoLog issues not yet linked to a Tracker
// project carry no canonical id until phase1 assigns one (spec §4.5).
func (f issueFile) toWorkItem() model.WorkItem {
	id, _ := model.NewCanonicalID(f.ID)
	parent, _ := model.NewCanonicalID(f.Parent)
	return model.WorkItem{
		ID:          id,
		Title:       f.Title,
		Description: f.Description,
		Status:      f.Status,
		Priority:    f.Priority,
		Parent:      parent,
		TrackerID:   f.TrackerID,
		DocsTaskID:  f.DocsTaskID,
		Labels:      f.Labels,
		ModifiedAt:  time.Unix(f.ModifiedAt, 0).UTC(),
	}
}

// GitAdapter is a RepoLogAdapter implementation backed by a local git
// working copy plus an optional Gitea or GitLab remote for repository
// discovery.
type GitAdapter struct {
	// WorkDir is the parent directory under which per-project working
	// copies are rooted when no explicit RepoPath is known yet.
	WorkDir string

	gitea  *gitea.Client
	gitlab *gitlab.Client

	// GiteaOwner/GitlabGroup scope repository lookups for ResolveRepoPath.
	GiteaOwner  string
	GitlabGroup string
}

// NewGiteaBackedAdapter configures a GitAdapter that resolves project
// repositories against a Gitea instance.
func NewGiteaBackedAdapter(url, token, owner, workDir string) (*GitAdapter, error) {
	client, err := gitea.NewClient(url, gitea.SetToken(token))
	if err != nil {
		return nil, fmt.Errorf("repolog: failed to create gitea client: %w", err)
	}
	return &GitAdapter{WorkDir: workDir, gitea: client, GiteaOwner: owner}, nil
}

// NewGitlabBackedAdapter configures a GitAdapter that resolves project
// repositories against a GitLab instance.
func NewGitlabBackedAdapter(url, token, group, workDir string) (*GitAdapter, error) {
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(strings.TrimRight(url, "/")+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("repolog: failed to create gitlab client: %w", err)
	}
	return &GitAdapter{WorkDir: workDir, gitlab: client, GitlabGroup: group}, nil
}

// NewLocalAdapter configures a GitAdapter with no remote forge, for
// development or tests: ResolveRepoPath always falls back to
// WorkDir/<project>.
func NewLocalAdapter(workDir string) *GitAdapter {
	return &GitAdapter{WorkDir: workDir}
}

// ResolveRepoPath turns a project code into the local working-copy path,
// cloning from the configured forge on first use.
func (a *GitAdapter) ResolveRepoPath(ctx context.Context, project model.ProjectCode) (string, error) {
	local := filepath.Join(a.WorkDir, string(project))
	if _, err := os.Stat(filepath.Join(local, ".git")); err == nil {
		return local, nil
	}

	cloneURL, err := a.remoteCloneURL(project)
	if err != nil {
		return "", err
	}
	if cloneURL == "" {
		return local, a.Init(ctx, local, project)
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("repolog: failed to prepare work dir: %w", err)
	}
	if err := runGit(ctx, a.WorkDir, "clone", cloneURL, local); err != nil {
		return "", errkind.New(errkind.Retryable, "repolog.clone", err)
	}
	return local, nil
}

func (a *GitAdapter) remoteCloneURL(project model.ProjectCode) (string, error) {
	switch {
	case a.gitea != nil:
		repo, _, err := a.gitea.GetRepo(a.GiteaOwner, string(project))
		if err != nil {
			return "", fmt.Errorf("repolog: gitea repo lookup for %s: %w", project, err)
		}
		return repo.CloneURL, nil
	case a.gitlab != nil:
		path := a.GitlabGroup + "/" + string(project)
		repo, _, err := a.gitlab.Projects.GetProject(path, nil)
		if err != nil {
			return "", fmt.Errorf("repolog: gitlab project lookup for %s: %w", project, err)
		}
		return repo.HTTPURLToRepo, nil
	default:
		return "", nil
	}
}

// Init ensures repoPath exists, is a git repository, and has a
// ".repolog/issues" directory ready to hold issue files.
func (a *GitAdapter) Init(ctx context.Context, repoPath string, project model.ProjectCode) error {
	issuesDir := filepath.Join(repoPath, ".repolog", "issues")
	if err := os.MkdirAll(issuesDir, 0o755); err != nil {
		return errkind.New(errkind.Retryable, "repolog.init", fmt.Errorf("create issues dir: %w", err))
	}
	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil {
		if err := runGit(ctx, repoPath, "init"); err != nil {
			return errkind.New(errkind.Retryable, "repolog.init", err)
		}
	}
	return nil
}

// ListIssues reads every issue file under repoPath/.repolog/issues.
func (a *GitAdapter) ListIssues(ctx context.Context, repoPath string) ([]model.WorkItem, error) {
	issuesDir := filepath.Join(repoPath, ".repolog", "issues")
	entries, err := os.ReadDir(issuesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.New(errkind.Retryable, "repolog.list", err)
	}

	items := make([]model.WorkItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		item, err := readIssueFile(filepath.Join(issuesDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// GetIssue reads a single issue file by id.
func (a *GitAdapter) GetIssue(ctx context.Context, id string, repoPath string) (model.WorkItem, error) {
	return readIssueFile(issuePath(repoPath, id))
}

// Upsert writes (creating or overwriting) the issue file for item.ID.
func (a *GitAdapter) Upsert(ctx context.Context, repoPath string, item model.WorkItem) (model.WorkItem, error) {
	path := issuePath(repoPath, item.ID.String())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return model.WorkItem{}, errkind.New(errkind.Retryable, "repolog.upsert", err)
	}

	data, err := yaml.Marshal(toIssueFile(item))
	if err != nil {
		return model.WorkItem{}, errkind.Validationf("repolog.upsert", "marshal issue %s: %v", item.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return model.WorkItem{}, errkind.New(errkind.Retryable, "repolog.upsert", err)
	}
	return item, nil
}

// Commit stages all pending changes under .repolog and commits them.
// A commit failure is retryable per spec §7: it must never undo the
// writes Upsert already made to the working copy.
func (a *GitAdapter) Commit(ctx context.Context, repoPath string, message string) error {
	if err := runGit(ctx, repoPath, "add", ".repolog"); err != nil {
		return errkind.New(errkind.Retryable, "repolog.commit", err)
	}
	if err := runGit(ctx, repoPath, "commit", "--allow-empty-message", "-m", message); err != nil {
		if isNothingToCommit(err) {
			return nil
		}
		return errkind.New(errkind.Retryable, "repolog.commit", err)
	}
	return nil
}

func issuePath(repoPath, id string) string {
	return filepath.Join(repoPath, ".repolog", "issues", id+".yaml")
}

func readIssueFile(path string) (model.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.WorkItem{}, errkind.NotFoundf("repolog.get", "issue file %s not found", path)
		}
		return model.WorkItem{}, errkind.New(errkind.Retryable, "repolog.get", err)
	}
	var f issueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return model.WorkItem{}, errkind.Validationf("repolog.get", "unmarshal %s: %v", path, err)
	}
	return f.toWorkItem(), nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func isNothingToCommit(err error) bool {
	return strings.Contains(err.Error(), "nothing to commit")
}
