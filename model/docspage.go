package model

import "time"

// SyncDirection records which way a Docs mirror page last moved.
type SyncDirection string

const (
	DirectionImport SyncDirection = "import"
	DirectionExport SyncDirection = "export"
)

// PageSyncStatus is the DocsPage row's lifecycle status (spec §3).
type PageSyncStatus string

const (
	PageStatusSynced        PageSyncStatus = "synced"
	PageStatusDeletedRemote PageSyncStatus = "deleted_remote"
)

// DocsPage is the per-file/per-page metadata row the Docs mirror (C9)
// persists, one row per local markdown file tracked against a Docs page.
type DocsPage struct {
	CanonicalPageID string
	BookSlug        string
	ChapterID       string
	Project         ProjectCode
	LocalPath       string // relative to the book directory, unique per project

	ContentHash       string
	RemoteContentHash string

	LocalModifiedAt  time.Time
	RemoteModifiedAt time.Time
	LastExportAt     time.Time
	LastImportAt     time.Time

	SyncDirection SyncDirection
	SyncStatus    PageSyncStatus
}

// WithinEchoWindow reports whether the page was exported within window
// of now, i.e. an import of the same file should be suppressed to avoid
// the echo loop (spec §4.8, DESIGN.md Open Question #1).
func (p DocsPage) WithinEchoWindow(now time.Time, window time.Duration) bool {
	if p.LastExportAt.IsZero() {
		return false
	}
	return now.Sub(p.LastExportAt) < window
}
