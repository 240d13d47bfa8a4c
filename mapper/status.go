// Package mapper provides pure translation between the three systems'
// status and priority vocabularies, plus the totally-ordered status rank
// used by the regression guard. No I/O, no adapters — every exported
// function is deterministic given its inputs, mirroring the coordinator
// package's Phase const-table idiom (named states + a transition/rank
// table) but with no workflow machinery attached.
package mapper

import (
	"strings"

	"vibesync.dev/syncorch/model"
)

// TrackerStatus is one of the Tracker system's canonical status strings.
type TrackerStatus string

const (
	TrackerBacklog    TrackerStatus = "Backlog"
	TrackerTodo       TrackerStatus = "Todo"
	TrackerInProgress TrackerStatus = "In Progress"
	TrackerInReview   TrackerStatus = "In Review"
	TrackerDone       TrackerStatus = "Done"
	TrackerCancelled  TrackerStatus = "Cancelled"
	TrackerCanceled   TrackerStatus = "Canceled" // alternate spelling, same rank
)

// trackerRank is the totally-ordered rank table for Tracker statuses
// (spec §4.1). Unknown statuses rank -1 and bypass the regression guard.
var trackerRank = map[TrackerStatus]int{
	TrackerBacklog:    0,
	TrackerTodo:       1,
	TrackerInProgress: 2,
	TrackerInReview:   3,
	TrackerDone:       4,
	TrackerCancelled:  4,
	TrackerCanceled:   4,
}

// RankOfTracker returns the rank of a Tracker status string, or -1 if
// unrecognized.
func RankOfTracker(status string) int {
	if r, ok := trackerRank[TrackerStatus(status)]; ok {
		return r
	}
	return -1
}

// RepoLogToTracker maps a RepoLog status (plus its label set, for
// disambiguation) to the equivalent Tracker status (spec §4.1).
func RepoLogToTracker(status string, labels []string) TrackerStatus {
	switch status {
	case "open":
		if model.HasLabel(labels, "tracker:Todo") {
			return TrackerTodo
		}
		return TrackerBacklog
	case "in_progress":
		if model.HasLabel(labels, "tracker:In Review") {
			return TrackerInReview
		}
		return TrackerInProgress
	case "blocked":
		return TrackerInProgress
	case "deferred":
		return TrackerBacklog
	case "closed":
		if model.HasLabel(labels, "tracker:Canceled") || model.HasLabel(labels, "tracker:Cancelled") {
			return TrackerCanceled
		}
		return TrackerDone
	default:
		return ""
	}
}

// DocsToTracker maps a Docs status to the equivalent Tracker status via
// case-insensitive substring matching (spec §4.1).
func DocsToTracker(status string) TrackerStatus {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "progress"):
		return TrackerInProgress
	case strings.Contains(s, "review"):
		return TrackerInReview
	case strings.Contains(s, "done"), strings.Contains(s, "completed"):
		return TrackerDone
	case strings.Contains(s, "cancel"):
		return TrackerCancelled
	default:
		return TrackerTodo
	}
}

// TrackerToDocs maps a Tracker status to the Docs vocabulary
// {todo, inprogress, inreview, done, cancelled} (spec §4.1, inverse of
// DocsToTracker).
func TrackerToDocs(status TrackerStatus) string {
	switch status {
	case TrackerInProgress:
		return "inprogress"
	case TrackerInReview:
		return "inreview"
	case TrackerDone:
		return "done"
	case TrackerCancelled, TrackerCanceled:
		return "cancelled"
	default:
		return "todo"
	}
}
