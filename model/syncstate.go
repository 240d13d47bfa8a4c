package model

import "time"

// SyncStateRow is the durable row C2 persists, keyed by CanonicalID
// (spec §3). Field layout mirrors the per-system fan-out pattern the
// store's SQL schema uses: one {system}_id / {system}_modified_at /
// {system}_status triple per external system.
type SyncStateRow struct {
	CanonicalID CanonicalID
	Project     ProjectCode
	Title       string
	Description string
	Status      string
	Priority    string

	TrackerID         string
	TrackerModifiedAt time.Time
	TrackerStatus     string

	RepoLogID         string
	RepoLogModifiedAt time.Time
	RepoLogStatus     string

	DocsTaskID         string
	DocsModifiedAt     time.Time
	DocsStatus         string

	ParentCanonical CanonicalID
	ParentRepoLogID string

	Deleted   bool
	DeletedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimestampOf returns the stored modification time for system, or the
// zero Time if no mirror exists yet on that system.
func (r SyncStateRow) TimestampOf(system System) time.Time {
	return r.Timestamps().TimestampOf(system)
}

// Timestamps projects the row down to just its per-system modification
// times, the shape GetTimestamps returns directly without fetching a
// full row (spec §4.2: "hot path for conflict check").
func (r SyncStateRow) Timestamps() SyncStateTimestamps {
	return SyncStateTimestamps{
		TrackerModifiedAt: r.TrackerModifiedAt,
		RepoLogModifiedAt: r.RepoLogModifiedAt,
		DocsModifiedAt:    r.DocsModifiedAt,
	}
}

// SyncStateTimestamps is the per-system modification-time projection of a
// SyncStateRow, with none of the other fields — the engine's conflict
// check only ever needs these three (spec §4.2).
type SyncStateTimestamps struct {
	TrackerModifiedAt time.Time
	RepoLogModifiedAt time.Time
	DocsModifiedAt    time.Time
}

// TimestampOf returns the stored modification time for system, or the
// zero Time if no mirror exists yet on that system.
func (t SyncStateTimestamps) TimestampOf(system System) time.Time {
	switch system {
	case SystemTracker:
		return t.TrackerModifiedAt
	case SystemRepoLog:
		return t.RepoLogModifiedAt
	case SystemDocs:
		return t.DocsModifiedAt
	default:
		return time.Time{}
	}
}

// LinkedIDOf returns the stored mirror id for system, or "".
func (r SyncStateRow) LinkedIDOf(system System) string {
	switch system {
	case SystemTracker:
		return r.TrackerID
	case SystemRepoLog:
		return r.RepoLogID
	case SystemDocs:
		return r.DocsTaskID
	default:
		return ""
	}
}

// StatusOf returns the stored per-system status string, or "".
func (r SyncStateRow) StatusOf(system System) string {
	switch system {
	case SystemTracker:
		return r.TrackerStatus
	case SystemRepoLog:
		return r.RepoLogStatus
	case SystemDocs:
		return r.DocsStatus
	default:
		return ""
	}
}

// SyncStateUpdate is a partial row used by Upsert: fields left at their
// zero value are left unchanged on the stored row (spec §4.2).
type SyncStateUpdate struct {
	CanonicalID CanonicalID
	Project     ProjectCode

	Title       *string
	Description *string
	Status      *string
	Priority    *string

	TrackerID         *string
	TrackerModifiedAt *time.Time
	TrackerStatus     *string

	RepoLogID         *string
	RepoLogModifiedAt *time.Time
	RepoLogStatus     *string

	DocsTaskID         *string
	DocsModifiedAt     *time.Time
	DocsStatus         *string

	ParentCanonical *CanonicalID
	ParentRepoLogID *string
}

// DeleteScope controls MarkDeleted's blast radius (spec §4.2).
type DeleteScope string

const (
	DeleteScopeRow DeleteScope = "row"
)
