// Package filewatch implements the RepoLog File Watcher ingester (spec
// §4.4): given a set of changed files under a project's repoPath, walk
// every RepoLog item and either adopt it into Tracker for the first
// time, lay down a baseline without syncing, or propagate the change
// through the single-item engine under the rank guard.
package filewatch

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/engine"
	"vibesync.dev/syncorch/mapper"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/runtime"
	"vibesync.dev/syncorch/syncstate"
)

// interItemDelay rate-limits adapter calls between items (spec §4.4).
const interItemDelay = 200 * time.Millisecond

// Ingester drives the RepoLog File Watcher.
type Ingester struct {
	Tracker adapters.TrackerAdapter
	RepoLog adapters.RepoLogAdapter
	Engine  *engine.Engine
	Store   syncstate.Store
	Logger  *logrus.Entry
}

func (n *Ingester) logger() *logrus.Entry {
	if n.Logger != nil {
		return n.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// ProcessChangedFiles handles one notification batch: changedFiles is
// advisory only (this adapter has no per-file granularity), so every
// call re-enumerates the full RepoLog item set under repoPath.
func (n *Ingester) ProcessChangedFiles(ctx context.Context, project model.ProjectCode, repoPath string, changedFiles []string) error {
	log := n.logger().WithFields(logrus.Fields{"project": project, "repoPath": repoPath})

	items, err := n.RepoLog.ListIssues(ctx, repoPath)
	if err != nil {
		return err
	}
	log.WithField("count", len(items)).Debug("repolog file watcher: enumerated items")

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.processItem(ctx, project, repoPath, item); err != nil {
			log.WithError(err).WithField("item", item.ID).Warn("repolog file watcher: item failed")
		}

		if i < len(items)-1 {
			if err := runtime.Sleep(ctx, interItemDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Ingester) processItem(ctx context.Context, project model.ProjectCode, repoPath string, item model.WorkItem) error {
	if item.TrackerID == "" {
		return n.adopt(ctx, project, repoPath, item)
	}

	trackerID, err := model.NewCanonicalID(item.TrackerID)
	if err != nil {
		// Not a valid PROJ-N label; treat same as absent.
		return n.adopt(ctx, project, repoPath, item)
	}

	existing, ok, err := n.Store.Get(ctx, trackerID)
	if err != nil {
		return err
	}
	if !ok {
		return n.baseline(ctx, trackerID, project, item)
	}

	if !changed(existing, item) {
		return nil
	}

	currentRank := mapper.RankOfTracker(existing.TrackerStatus)
	targetStatus := mapper.RepoLogToTracker(item.Status, item.Labels)
	targetRank := mapper.RankOfTracker(string(targetStatus))
	if !mapper.AllowsTransition(currentRank, targetRank, false) {
		return nil
	}

	linked := model.LinkedIDs{TrackerID: string(trackerID), DocsTaskID: existing.DocsTaskID}
	item.ID = trackerID
	_, err = n.Engine.Sync(ctx, engine.Input{
		Source:    model.SystemRepoLog,
		Item:      item,
		Project:   project,
		RepoPath:  repoPath,
		LinkedIDs: linked,
	})
	return err
}

// adopt creates or links the item into Tracker (spec §4.4: "upsert the
// item into Tracker via adapter") and records the resulting baseline.
func (n *Ingester) adopt(ctx context.Context, project model.ProjectCode, repoPath string, item model.WorkItem) error {
	created, err := n.Tracker.CreateIssue(ctx, item)
	if err != nil {
		return err
	}

	item.ID = created.ID
	item.TrackerID = created.ID.String()
	if _, err := n.RepoLog.Upsert(ctx, repoPath, item); err != nil {
		return err
	}
	return n.baseline(ctx, created.ID, project, item)
}

// baseline records a SyncState row with no cross-system propagation
// (spec §4.4's first-sighting rule: avoid replaying history on first
// adoption of a labeled item).
func (n *Ingester) baseline(ctx context.Context, id model.CanonicalID, project model.ProjectCode, item model.WorkItem) error {
	modifiedAt := item.ModifiedAt
	status := item.Status
	title := item.Title
	description := item.Description
	repoLogID := item.ID.String()

	_, err := n.Store.Upsert(ctx, model.SyncStateUpdate{
		CanonicalID:       id,
		Project:           project,
		Title:             &title,
		Description:       &description,
		Status:            &status,
		TrackerID:         strPtr(string(id)),
		TrackerModifiedAt: &modifiedAt,
		TrackerStatus:     &status,
		RepoLogID:         &repoLogID,
		RepoLogModifiedAt: &modifiedAt,
		RepoLogStatus:     &status,
	})
	return err
}

func changed(row model.SyncStateRow, item model.WorkItem) bool {
	return row.Title != item.Title || row.Description != item.Description || row.RepoLogStatus != item.Status
}

func strPtr(s string) *string { return &s }

// Watch runs a long-lived fsnotify loop over repoPath, debouncing bursts
// of filesystem events into batched ProcessChangedFiles calls. Returns
// when ctx is cancelled or the watcher fails to start.
func (n *Ingester) Watch(ctx context.Context, project model.ProjectCode, repoPath string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(repoPath); err != nil {
		return err
	}

	var pending []string
	var timer *time.Timer
	timerC := func() <-chan time.Time {
		if timer == nil {
			return nil
		}
		return timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			pending = append(pending, ev.Name)
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			n.logger().WithError(err).Warn("repolog file watcher: fsnotify error")

		case <-timerC():
			batch := pending
			pending = nil
			timer = nil
			if err := n.ProcessChangedFiles(ctx, project, repoPath, batch); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				n.logger().WithError(err).Warn("repolog file watcher: batch failed")
			}
		}
	}
}
