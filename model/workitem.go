package model

import "time"

// System names a sync source/target (spec §1: Tracker / RepoLog / Docs).
type System string

const (
	SystemTracker System = "tracker"
	SystemRepoLog System = "repoLog"
	SystemDocs    System = "docs"
)

// WorkItem is the logical work item spec §3 describes: a canonical item
// plus per-system mirror ids and modification timestamps.
type WorkItem struct {
	ID          CanonicalID
	Title       string
	Description string
	Status      string
	Priority    string
	Parent      CanonicalID

	TrackerID  string
	RepoLogID  string
	DocsTaskID string

	// Labels carries the RepoLog issue's raw label set, used by the
	// mapper (C1) to disambiguate a RepoLog status into the equivalent
	// Tracker status (spec §4.1: "tracker:Todo"/"tracker:In Review"/
	// "tracker:Canceled").
	Labels []string

	ModifiedAt time.Time // modification time on the source system
}

// LinkedIDs carries the known per-system ids for a work item, as passed
// into the bidirectional sync engine (spec §4.3).
type LinkedIDs struct {
	TrackerID  string
	RepoLogID  string
	DocsTaskID string
}

// HasCounterpart reports whether any system other than source has a
// known linked id — used by the engine's conflict-check short circuit
// (spec §4.3 step 1).
func (l LinkedIDs) HasCounterpart(source System) bool {
	switch source {
	case SystemTracker:
		return l.RepoLogID != "" || l.DocsTaskID != ""
	case SystemRepoLog:
		return l.TrackerID != "" || l.DocsTaskID != ""
	case SystemDocs:
		return l.TrackerID != "" || l.RepoLogID != ""
	default:
		return l.TrackerID != "" || l.RepoLogID != "" || l.DocsTaskID != ""
	}
}
