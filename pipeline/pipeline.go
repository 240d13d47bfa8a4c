package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/engine"
	"vibesync.dev/syncorch/mapper"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/runtime"
	"vibesync.dev/syncorch/syncstate"
)

// Pipeline runs the Project-Sync Pipeline (C6) for a single project. Run
// is a runtime.WorkflowFunc: call it directly for a one-shot invocation,
// or hand it to a runtime.Runner to get continue-as-new looping for
// free.
type Pipeline struct {
	Tracker adapters.TrackerAdapter
	RepoLog adapters.RepoLogAdapter
	Docs    adapters.DocsAdapter
	Memory  adapters.MemorySinkAdapter
	Store   syncstate.Store
	Engine  *engine.Engine
	Config  Config
	Logger  *logrus.Entry
}

func (p *Pipeline) logger() *logrus.Entry {
	if p.Logger != nil {
		return p.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (p *Pipeline) memory() adapters.MemorySinkAdapter {
	if p.Memory != nil {
		return p.Memory
	}
	return adapters.NullMemorySink{}
}

// Run drives the phase state machine, one phase transition per loop
// iteration, returning a runtime.ContinueAsNewSignal whenever a phase's
// batch cap is hit with items still unprocessed.
func (p *Pipeline) Run(ctx context.Context, input any) (any, error) {
	in, ok := input.(Input)
	if !ok {
		return nil, fmt.Errorf("pipeline: unexpected workflow input %T", input)
	}
	if in.Phase == "" {
		in.Phase = PhaseInit
	}
	if in.Phase1SyncedTrackerIDs == nil {
		in.Phase1SyncedTrackerIDs = make(map[string]bool)
	}

	log := p.logger().WithField("project", in.Project)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		repoLogEnabled := in.RepoPath != ""
		log.WithField("phase", in.Phase).Debug("pipeline: entering phase")

		var (
			complete bool
			err      error
		)

		switch in.Phase {
		case PhaseInit:
			p.runInit(ctx, &in)
			complete = true

		case Phase1:
			complete, err = p.runPhase1(ctx, &in)

		case Phase2:
			complete, err = p.runPhase2(ctx, &in)

		case Phase3:
			complete, err = p.runPhase3(ctx, &in)

		case Phase3b:
			complete, err = p.runPhase3b(ctx, &in)

		case Phase3c:
			complete, err = p.runPhase3c(ctx, &in)

		case PhaseDone:
			in.AccumulatedResult.Success = len(in.AccumulatedResult.Errors) == 0
			return in.AccumulatedResult, nil

		default:
			return nil, fmt.Errorf("pipeline: unknown phase %q", in.Phase)
		}

		if err != nil {
			return nil, err
		}
		if !complete {
			return nil, runtime.ContinueAsNew(in)
		}

		in.Phase = in.Phase.next(p.Config.DocsEnabled, repoLogEnabled)
		in.Cursor = 0
	}
}

// runInit ensures the Docs peer and RepoLog repository exist and
// best-effort triggers agent provisioning (spec §4.5 init phase). It
// does not parse repoPath: it uses in.RepoPath as given by the caller
// (the orchestrator passes model.Project.RepoPath), and leaves it empty
// when none was given.
func (p *Pipeline) runInit(ctx context.Context, in *Input) {
	if p.Config.DocsEnabled {
		if _, err := p.Docs.ListTasks(ctx, in.Project); err != nil {
			in.AccumulatedResult.recordError(fmt.Errorf("init: docs peer unreachable: %w", err))
		}
	}

	if in.RepoPath != "" && !in.RepoLogInitialized {
		if err := p.RepoLog.Init(ctx, in.RepoPath, in.Project); err != nil {
			in.AccumulatedResult.recordError(fmt.Errorf("init: repolog init: %w", err))
		} else {
			in.RepoLogInitialized = true
		}
	}

	// Agent provisioning is best-effort and never fails the pipeline.
	_ = p.memory().UpdateBlock(ctx, string(in.Project), "pipeline_phase", string(PhaseInit))
}

// trackerIssues returns the working issue set for this run: the
// prefetched set if one was supplied, otherwise a fresh bulk fetch
// scoped to this one project.
func (p *Pipeline) trackerIssues(ctx context.Context, in *Input) ([]model.WorkItem, error) {
	if in.PrefetchedIssues != nil {
		return in.PrefetchedIssues, nil
	}
	byProject, err := p.Tracker.ListIssuesBulk(ctx, []model.ProjectCode{in.Project}, 0)
	if err != nil {
		return nil, err
	}
	return byProject[in.Project], nil
}

// runBatch is the shared continue-as-new batching loop every phase
// drives: process items[in.Cursor:] up to effectiveBatchSize items,
// returning complete=false (without advancing in.Phase) if items remain.
func (p *Pipeline) runBatch(ctx context.Context, in *Input, total int, process func(i int) error) (bool, error) {
	batchSize := in.effectiveBatchSize(p.Config)
	processedThisRun := 0

	for in.Cursor < total {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		if err := process(in.Cursor); err != nil {
			in.AccumulatedResult.recordError(err)
		} else {
			in.AccumulatedResult.IssuesSynced++
		}
		in.Cursor++
		processedThisRun++

		if processedThisRun >= batchSize && in.Cursor < total {
			return false, nil
		}
	}
	return true, nil
}

// runPhase1: Tracker -> Docs-like peer, parents before children.
func (p *Pipeline) runPhase1(ctx context.Context, in *Input) (bool, error) {
	issues, err := p.trackerIssues(ctx, in)
	if err != nil {
		return false, err
	}
	issues = sortParentsFirst(issues)

	return p.runBatch(ctx, in, len(issues), func(i int) error {
		item := issues[i]
		task, err := p.Docs.UpsertTask(ctx, adapters.DocsTaskItem{
			ID:          item.DocsTaskID,
			Project:     in.Project,
			Title:       item.Title,
			Description: item.Description,
			Status:      mapper.TrackerToDocs(mapper.TrackerStatus(item.Status)),
			ModifiedAt:  item.ModifiedAt.Unix(),
		})
		if err != nil {
			return err
		}

		in.Phase1SyncedTrackerIDs[item.ID.String()] = true

		_, err = p.Store.Upsert(ctx, model.SyncStateUpdate{
			CanonicalID:       item.ID,
			Project:           in.Project,
			Title:             strPtr(item.Title),
			Description:       strPtr(item.Description),
			TrackerID:         strPtr(item.ID.String()),
			TrackerModifiedAt: &item.ModifiedAt,
			TrackerStatus:     strPtr(item.Status),
			DocsTaskID:        strPtr(task.ID),
			DocsModifiedAt:    &item.ModifiedAt,
			DocsStatus:        strPtr(task.Status),
		})
		return err
	})
}

// runPhase2: Docs-like peer -> Tracker, for every task phase1 didn't
// already touch this run.
func (p *Pipeline) runPhase2(ctx context.Context, in *Input) (bool, error) {
	if !p.Config.DocsEnabled {
		return true, nil
	}

	tasks, err := p.Docs.ListTasks(ctx, in.Project)
	if err != nil {
		return false, err
	}

	var pending []adapters.DocsTaskItem
	for _, t := range tasks {
		trackerID := model.ExtractTrackerID(t.Description)
		if trackerID == "" {
			continue
		}
		if in.Phase1SyncedTrackerIDs[trackerID.String()] {
			continue
		}
		pending = append(pending, t)
	}

	return p.runBatch(ctx, in, len(pending), func(i int) error {
		task := pending[i]
		trackerID := model.ExtractTrackerID(task.Description)

		_, err := p.Engine.Sync(ctx, engine.Input{
			Source: model.SystemDocs,
			Item: model.WorkItem{
				ID:          trackerID,
				Title:       task.Title,
				Description: task.Description,
				Status:      string(mapper.DocsToTracker(task.Status)),
				ModifiedAt:  time.Unix(task.ModifiedAt, 0).UTC(),
			},
			Project:   in.Project,
			LinkedIDs: model.LinkedIDs{TrackerID: trackerID.String(), DocsTaskID: task.ID},
		})
		return err
	})
}

// runPhase3: Tracker -> RepoLog, deduplicating by normalized title per
// batch and re-fetching RepoLog's list after each batch (spec §4.5).
func (p *Pipeline) runPhase3(ctx context.Context, in *Input) (bool, error) {
	if in.RepoPath == "" {
		return true, nil
	}

	issues, err := p.trackerIssues(ctx, in)
	if err != nil {
		return false, err
	}

	batchSize := in.effectiveBatchSize(p.Config)
	end := in.Cursor + batchSize
	if end > len(issues) {
		end = len(issues)
	}
	batch := dedupeByNormalizedTitle(issues[in.Cursor:end])

	var updates []model.SyncStateUpdate
	for _, item := range batch {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if _, err := p.RepoLog.Upsert(ctx, in.RepoPath, item); err != nil {
			in.AccumulatedResult.recordError(err)
			continue
		}
		in.AccumulatedResult.IssuesSynced++

		updates = append(updates, model.SyncStateUpdate{
			CanonicalID:       item.ID,
			Project:           in.Project,
			RepoLogID:         strPtr(item.ID.String()),
			RepoLogModifiedAt: &item.ModifiedAt,
			RepoLogStatus:     strPtr(item.Status),
		})
	}
	in.Cursor = end

	// One atomic batch write per run, not a per-row Upsert inside the
	// loop (spec §4.2 UpsertBatch: "all-or-nothing") — a crash mid-batch
	// must never leave some of this batch's rows persisted and others not.
	if len(updates) > 0 {
		if _, err := p.Store.UpsertBatch(ctx, updates); err != nil {
			in.AccumulatedResult.recordError(err)
		}
	}

	// Re-fetch to pick up side effects (e.g. a commit hook renaming
	// files) before the next batch or phase reads the list again.
	if _, err := p.RepoLog.ListIssues(ctx, in.RepoPath); err != nil {
		in.AccumulatedResult.recordError(err)
	}

	return in.Cursor >= len(issues), nil
}

// runPhase3b: RepoLog -> Tracker. Labeled items sync into Tracker under
// the rank guard; unlabeled items become new Tracker items.
func (p *Pipeline) runPhase3b(ctx context.Context, in *Input) (bool, error) {
	if in.RepoPath == "" {
		return true, nil
	}

	items, err := p.RepoLog.ListIssues(ctx, in.RepoPath)
	if err != nil {
		return false, err
	}

	var trackerIDs []model.CanonicalID
	for _, item := range items {
		if item.TrackerID == "" {
			continue
		}
		if id, err := model.NewCanonicalID(item.TrackerID); err == nil {
			trackerIDs = append(trackerIDs, id)
		}
	}
	existingByID, err := p.Store.GetStateBatch(ctx, trackerIDs)
	if err != nil {
		return false, err
	}

	return p.runBatch(ctx, in, len(items), func(i int) error {
		item := items[i]
		if item.TrackerID == "" {
			return p.createFromRepoLog(ctx, in, item)
		}
		return p.syncLabeledRepoLogItem(ctx, in, item, existingByID)
	})
}

func (p *Pipeline) createFromRepoLog(ctx context.Context, in *Input, item model.WorkItem) error {
	created, err := p.Tracker.CreateIssue(ctx, item)
	if err != nil {
		return err
	}
	item.ID = created.ID
	item.TrackerID = created.ID.String()
	if _, err := p.RepoLog.Upsert(ctx, in.RepoPath, item); err != nil {
		return err
	}

	_, err = p.Store.Upsert(ctx, model.SyncStateUpdate{
		CanonicalID:       created.ID,
		Project:           in.Project,
		TrackerID:         strPtr(created.ID.String()),
		TrackerModifiedAt: &item.ModifiedAt,
		TrackerStatus:     strPtr(item.Status),
		RepoLogID:         strPtr(item.ID.String()),
		RepoLogModifiedAt: &item.ModifiedAt,
		RepoLogStatus:     strPtr(item.Status),
	})
	return err
}

func (p *Pipeline) syncLabeledRepoLogItem(ctx context.Context, in *Input, item model.WorkItem, existingByID map[model.CanonicalID]model.SyncStateRow) error {
	trackerID, err := model.NewCanonicalID(item.TrackerID)
	if err != nil {
		return p.createFromRepoLog(ctx, in, item)
	}

	existing, ok := existingByID[trackerID]
	if ok {
		currentRank := mapper.RankOfTracker(existing.TrackerStatus)
		targetRank := mapper.RankOfTracker(string(mapper.RepoLogToTracker(item.Status, item.Labels)))
		if !mapper.AllowsTransition(currentRank, targetRank, p.Config.RejectUnknownRankTarget) {
			return nil
		}
	}

	item.ID = trackerID
	_, err = p.Engine.Sync(ctx, engine.Input{
		Source:    model.SystemRepoLog,
		Item:      item,
		Project:   in.Project,
		RepoPath:  in.RepoPath,
		LinkedIDs: model.LinkedIDs{TrackerID: string(trackerID), DocsTaskID: existing.DocsTaskID},
	})
	return err
}

// runPhase3c: RepoLog -> Docs-like peer, batch-creating missing tasks.
func (p *Pipeline) runPhase3c(ctx context.Context, in *Input) (bool, error) {
	if in.RepoPath == "" || !p.Config.DocsEnabled {
		return true, nil
	}

	items, err := p.RepoLog.ListIssues(ctx, in.RepoPath)
	if err != nil {
		return false, err
	}

	return p.runBatch(ctx, in, len(items), func(i int) error {
		item := items[i]
		if item.DocsTaskID != "" {
			return nil
		}

		task, err := p.Docs.UpsertTask(ctx, adapters.DocsTaskItem{
			Project:     in.Project,
			Title:       item.Title,
			Description: item.Description,
			Status:      mapper.TrackerToDocs(mapper.RepoLogToTracker(item.Status, item.Labels)),
			ModifiedAt:  item.ModifiedAt.Unix(),
		})
		if err != nil {
			return err
		}

		update := model.SyncStateUpdate{
			Project:        in.Project,
			DocsTaskID:     strPtr(task.ID),
			DocsModifiedAt: &item.ModifiedAt,
			DocsStatus:     strPtr(task.Status),
			RepoLogID:      strPtr(item.ID.String()),
		}
		if item.TrackerID != "" {
			if id, err := model.NewCanonicalID(item.TrackerID); err == nil {
				update.CanonicalID = id
			}
		}
		if update.CanonicalID == "" {
			update.CanonicalID = item.ID
		}
		_, err = p.Store.Upsert(ctx, update)
		return err
	})
}

// sortParentsFirst stable-sorts items so that every item with no parent
// sorts before any item that has one (spec §4.5 phase1).
func sortParentsFirst(items []model.WorkItem) []model.WorkItem {
	sorted := make([]model.WorkItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Parent == "" && sorted[j].Parent != ""
	})
	return sorted
}

// dedupeByNormalizedTitle keeps the first occurrence of each
// case/whitespace-normalized title within batch.
func dedupeByNormalizedTitle(batch []model.WorkItem) []model.WorkItem {
	seen := make(map[string]bool, len(batch))
	out := make([]model.WorkItem, 0, len(batch))
	for _, item := range batch {
		key := strings.ToLower(strings.TrimSpace(item.Title))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func strPtr(s string) *string { return &s }
