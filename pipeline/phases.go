// Package pipeline implements the Project-Sync Pipeline (C6, spec
// §4.5): a finite-state machine that syncs one project through ordered
// phases, checkpointing via continue-as-new so its workflow history
// never exceeds a fixed bound.
package pipeline

import (
	"vibesync.dev/syncorch/model"
)

// Phase is one step of the pipeline's state machine, mirroring the
// teacher's coordinator.Phase const-table idiom (named states plus a
// transition table) but scoped to this pipeline's own phases rather
// than a generic workflow lifecycle.
type Phase string

const (
	PhaseInit    Phase = "init"
	Phase1       Phase = "phase1"
	Phase2       Phase = "phase2"
	Phase3       Phase = "phase3"
	Phase3b      Phase = "phase3b"
	Phase3c      Phase = "phase3c"
	PhaseDone    Phase = "done"
)

// next returns the phase that follows p given which optional stages are
// enabled (spec §4.5: "Phases 1 and 2 may be disabled... Phase 3* is
// enabled when repoPath is set").
func (p Phase) next(docsEnabled, repoLogEnabled bool) Phase {
	switch p {
	case PhaseInit:
		if docsEnabled {
			return Phase1
		}
		if repoLogEnabled {
			return Phase3
		}
		return PhaseDone
	case Phase1:
		return Phase2
	case Phase2:
		if repoLogEnabled {
			return Phase3
		}
		return PhaseDone
	case Phase3:
		return Phase3b
	case Phase3b:
		return Phase3c
	case Phase3c:
		return PhaseDone
	default:
		return PhaseDone
	}
}

// Config toggles optional phases and checkpoint cadence.
type Config struct {
	// DocsEnabled runs phase1/phase2 (a Docs-like task peer is
	// configured for this project).
	DocsEnabled bool
	// BatchSize bounds items processed before a continue-as-new
	// checkpoint (spec §4.5 default 100).
	BatchSize int
	// RejectUnknownRankTarget is forwarded to mapper.AllowsTransition.
	RejectUnknownRankTarget bool
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return 100
	}
	return c.BatchSize
}

// Result accumulates what the pipeline did across every phase and
// every continue-as-new run (spec §4.5's "_accumulatedResult").
type Result struct {
	IssuesSynced int
	Errors       []string
	Success      bool
}

func (r *Result) recordError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// Input is both the pipeline's starting arguments and its
// continue-as-new checkpoint payload (spec §4.5): phase, cursor, and
// accumulated state are carried across runs so no run needs history
// longer than one phase's worth of batches.
type Input struct {
	Project  model.ProjectCode
	RepoPath string // may be empty; PhaseInit does not derive it, and phase3* are skipped while it is empty

	Phase  Phase
	Cursor int

	AccumulatedResult Result

	RepoLogInitialized bool

	// Phase1SyncedTrackerIDs records which canonical ids phase1 already
	// upserted into the Docs peer this run, so phase2 skips them (spec
	// §4.5 phase2: "Docs-like peer task not updated in phase1").
	Phase1SyncedTrackerIDs map[string]bool

	// PrefetchedIssues, when non-nil, is used as the complete Tracker
	// issue set instead of a fresh bulk fetch (webhook-driven fast
	// path, spec §4.5).
	PrefetchedIssues []model.WorkItem
	// PartialFetch marks PrefetchedIssues as a small, incomplete set
	// (spec §4.5's webhook fast path): effectiveBatchSize becomes
	// max(configured, 20) and the pipeline never falls back to a full
	// fetch.
	PartialFetch bool
}

func (in Input) effectiveBatchSize(cfg Config) int {
	if in.PartialFetch {
		if b := cfg.batchSize(); b > 20 {
			return b
		}
		return 20
	}
	return cfg.batchSize()
}
