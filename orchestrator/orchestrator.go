// Package orchestrator implements the Full Orchestrator (C7, spec §4.6):
// the top-level workflow that iterates every project, delegates each to
// a Project-Sync pipeline child workflow, and circuit-breaks projects
// that keep failing.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/pipeline"
	"vibesync.dev/syncorch/runtime"
)

// Config tunes the orchestrator's circuit breaker, checkpoint cadence,
// and bulk-prefetch size. Zero values fall back to spec §4.6 defaults.
type Config struct {
	CircuitBreakerThreshold    int
	MaxProjectsPerContinuation int
	BulkPrefetchLimit          int
}

func (c Config) threshold() int {
	if c.CircuitBreakerThreshold <= 0 {
		return 3
	}
	return c.CircuitBreakerThreshold
}

func (c Config) maxPerContinuation() int {
	if c.MaxProjectsPerContinuation <= 0 {
		return 3
	}
	return c.MaxProjectsPerContinuation
}

func (c Config) bulkLimit() int {
	if c.BulkPrefetchLimit <= 0 {
		return 1000
	}
	return c.BulkPrefetchLimit
}

// ProjectResult records what happened to a single project's child
// workflow.
type ProjectResult struct {
	Project      model.ProjectCode
	Skipped      bool
	Success      bool
	IssuesSynced int
	Error        string
}

// Input is both the orchestrator's starting arguments and its
// continue-as-new checkpoint payload (spec §4.6: "continue-as-new
// carrying accumulated results, errors, original start time, and
// failure map"). Projects/Prefetched travel alongside those named
// fields so a resumed run never needs to re-list or re-fetch from
// scratch.
type Input struct {
	ProjectFilter []model.ProjectCode

	Projects   []model.Project
	Prefetched map[model.ProjectCode][]model.WorkItem
	Cursor     int

	ProjectFailures map[model.ProjectCode]int
	Results         []ProjectResult
	IssuesSynced    int
	ErrorCount      int

	StartedAt time.Time
	Cancelled bool
}

// Progress is the shape exposed through the "progress" query (spec
// §4.6).
type Progress struct {
	Status            string
	CurrentProject    model.ProjectCode
	ProjectsTotal     int
	ProjectsCompleted int
	IssuesSynced      int
	Errors            int
	StartedAt         time.Time
	ElapsedMs         int64
}

// Result is the orchestrator's terminal value once every project has
// been processed or the run was cancelled.
type Result struct {
	Status            string
	ProjectsProcessed int
	IssuesSynced      int
	Errors            int
	Results           []ProjectResult
	DurationMs        int64
}

// CancelSignal is the signal name the "cancel" query/signal pair uses
// (spec §4.6: "Cancel signal flips cancelled = true").
const CancelSignal = "cancel"

// Orchestrator wires the adapters and child pipeline a single orchestrator
// run needs. PipelineFn is the Project-Sync workflow (typically
// (*pipeline.Pipeline).Run) dispatched once per project.
type Orchestrator struct {
	Tracker    adapters.TrackerAdapter
	Metrics    adapters.MetricsSinkAdapter
	Runner     *runtime.Runner
	PipelineFn runtime.WorkflowFunc
	Config     Config
	Logger     *logrus.Entry
}

func (o *Orchestrator) logger() *logrus.Entry {
	if o.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger()).WithField("component", "orchestrator")
	}
	return o.Logger
}

func (o *Orchestrator) metrics() adapters.MetricsSinkAdapter {
	if o.Metrics == nil {
		return adapters.NullMetricsSink{}
	}
	return o.Metrics
}

// Run is the orchestrator's runtime.WorkflowFunc: fetch projects, bulk
// prefetch, then dispatch one child per project until every project is
// processed, cancelled, or the continue-as-new boundary is hit.
func (o *Orchestrator) Run(ctx context.Context, input any) (any, error) {
	in, _ := input.(Input)
	if in.StartedAt.IsZero() {
		in.StartedAt = time.Now()
	}
	if in.ProjectFailures == nil {
		in.ProjectFailures = make(map[model.ProjectCode]int)
	}

	if in.Projects == nil {
		projects, err := o.resolveProjects(ctx, in.ProjectFilter)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: list projects: %w", err)
		}
		in.Projects = projects
		in.Prefetched = o.bulkPrefetch(ctx, projects)
	}

	if h, ok := runtime.HandleFromContext(ctx); ok {
		h.SetQueryHandler(o.queryHandler(&in))
	}

	processedThisRun := 0
	for in.Cursor < len(in.Projects) {
		if h, ok := runtime.HandleFromContext(ctx); ok {
			select {
			case sig := <-h.Signals():
				if runtime.SignalName(sig) == CancelSignal {
					in.Cancelled = true
				}
			default:
			}
		}
		if in.Cancelled {
			break
		}

		project := in.Projects[in.Cursor]
		result := o.runProject(ctx, project, in.Prefetched[project.Identifier], &in)
		in.Results = append(in.Results, result)
		in.Cursor++
		processedThisRun++

		if processedThisRun >= o.Config.maxPerContinuation() && in.Cursor < len(in.Projects) {
			return nil, runtime.ContinueAsNew(in)
		}
	}

	return o.finalize(ctx, in), nil
}

func (o *Orchestrator) runProject(ctx context.Context, project model.Project, prefetched []model.WorkItem, in *Input) ProjectResult {
	code := project.Identifier

	if in.ProjectFailures[code] >= o.Config.threshold() {
		o.logger().WithField("project", code).Warn("circuit open, skipping project")
		return ProjectResult{Project: code, Skipped: true}
	}

	childInput := pipeline.Input{Project: code, RepoPath: project.RepoPath}
	if prefetched != nil {
		childInput.PrefetchedIssues = prefetched
	}

	childID := fmt.Sprintf("project-sync-%s-%s", code, uuid.NewString())
	raw, err := o.Runner.RunChild(ctx, runtime.StartOptions{WorkflowID: childID}, o.PipelineFn, childInput)
	if err != nil {
		in.ProjectFailures[code]++
		in.ErrorCount++
		return ProjectResult{Project: code, Success: false, Error: err.Error()}
	}

	result, _ := raw.(pipeline.Result)
	if !result.Success {
		in.ProjectFailures[code]++
		in.ErrorCount += len(result.Errors)
		return ProjectResult{
			Project:      code,
			Success:      false,
			IssuesSynced: result.IssuesSynced,
			Error:        strings.Join(result.Errors, "; "),
		}
	}

	delete(in.ProjectFailures, code)
	in.IssuesSynced += result.IssuesSynced
	return ProjectResult{Project: code, Success: true, IssuesSynced: result.IssuesSynced}
}

func (o *Orchestrator) resolveProjects(ctx context.Context, filter []model.ProjectCode) ([]model.Project, error) {
	all, err := o.Tracker.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return all, nil
	}

	want := make(map[model.ProjectCode]bool, len(filter))
	for _, f := range filter {
		want[f] = true
	}
	out := make([]model.Project, 0, len(filter))
	for _, p := range all {
		if want[p.Identifier] {
			out = append(out, p)
		}
	}
	return out, nil
}

// bulkPrefetch fetches up to Config.BulkPrefetchLimit items per project
// in one call, falling back to a per-project fetch when the bulk call
// fails (spec §4.6). Projects that fail even the per-project fallback
// are simply absent from the returned map; runProject's pipeline then
// fetches its own issues the normal way.
func (o *Orchestrator) bulkPrefetch(ctx context.Context, projects []model.Project) map[model.ProjectCode][]model.WorkItem {
	codes := make([]model.ProjectCode, len(projects))
	for i, p := range projects {
		codes[i] = p.Identifier
	}

	issues, err := o.Tracker.ListIssuesBulk(ctx, codes, o.Config.bulkLimit())
	if err == nil {
		return issues
	}
	o.logger().WithError(err).Warn("bulk prefetch failed, falling back to per-project fetch")

	result := make(map[model.ProjectCode][]model.WorkItem, len(projects))
	for _, code := range codes {
		single, err := o.Tracker.ListIssuesBulk(ctx, []model.ProjectCode{code}, o.Config.bulkLimit())
		if err != nil {
			o.logger().WithError(err).WithField("project", code).Warn("per-project fetch failed, pipeline will fetch on its own")
			continue
		}
		for k, v := range single {
			result[k] = v
		}
	}
	return result
}

func (o *Orchestrator) queryHandler(in *Input) runtime.QueryFunc {
	return func(name string) (any, error) {
		if name != "progress" {
			return nil, fmt.Errorf("orchestrator: unknown query %q", name)
		}

		status := "running"
		switch {
		case in.Cancelled:
			status = "cancelled"
		case in.Cursor >= len(in.Projects):
			status = "done"
		}

		var current model.ProjectCode
		if in.Cursor < len(in.Projects) {
			current = in.Projects[in.Cursor].Identifier
		}

		return Progress{
			Status:            status,
			CurrentProject:    current,
			ProjectsTotal:     len(in.Projects),
			ProjectsCompleted: in.Cursor,
			IssuesSynced:      in.IssuesSynced,
			Errors:            in.ErrorCount,
			StartedAt:         in.StartedAt,
			ElapsedMs:         time.Since(in.StartedAt).Milliseconds(),
		}, nil
	}
}

func (o *Orchestrator) finalize(ctx context.Context, in Input) Result {
	status := "done"
	if in.Cancelled {
		status = "cancelled"
	}
	duration := time.Since(in.StartedAt).Milliseconds()

	o.metrics().RecordSyncRun(ctx, len(in.Results), in.IssuesSynced, duration, in.ErrorCount)

	return Result{
		Status:            status,
		ProjectsProcessed: len(in.Results),
		IssuesSynced:      in.IssuesSynced,
		Errors:            in.ErrorCount,
		Results:           in.Results,
		DurationMs:        duration,
	}
}
