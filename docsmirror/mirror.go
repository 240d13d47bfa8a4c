// Package docsmirror implements the Docs Mirror Engine (C9, spec §4.8):
// a bidirectional content sync between a local markdown directory tree
// and a Docs platform "book", keyed by per-page SHA-256 content hash.
//
// A single Mirror struct owns the adapter, store, and config every
// method needs (DESIGN NOTES: "replace prototype/mixin-style service
// composition with a single struct whose methods share a fields
// bundle"), instead of the source's runtime-bound service methods.
package docsmirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/internal/errkind"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/syncstate"
)

// Config tunes the mirror's echo-loop suppression window and local
// directory naming (spec §4.8, DESIGN.md Open Question #1: "expose as
// configuration").
type Config struct {
	EchoLoopWindow time.Duration // default 60s
	DocsSubdir     string        // default "docs"
}

func (c Config) echoWindow() time.Duration {
	if c.EchoLoopWindow <= 0 {
		return 60 * time.Second
	}
	return c.EchoLoopWindow
}

func (c Config) docsSubdir() string {
	if c.DocsSubdir == "" {
		return "docs"
	}
	return c.DocsSubdir
}

// ImportOutcome is what ImportFile did with one local markdown file.
type ImportOutcome string

const (
	OutcomeImported         ImportOutcome = "imported"
	OutcomeSkippedEcho      ImportOutcome = "skipped_echo"
	OutcomeSkippedUnchanged ImportOutcome = "skipped_unchanged"
	OutcomeSkippedNoTitle   ImportOutcome = "skipped_no_title_heading"
)

// Mirror ties together the Docs adapter, the sync-state store's
// DocsPage rows, and the local book directory.
type Mirror struct {
	Docs   adapters.DocsAdapter
	Store  syncstate.Store
	// WorkDir is the parent directory books are rooted under; see
	// bookDir.
	WorkDir string
	Config  Config
	Logger  *logrus.Entry
}

func (m *Mirror) logger() *logrus.Entry {
	if m.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger()).WithField("component", "docsmirror")
	}
	return m.Logger
}

// ImportFile pushes one local markdown file's content up to its Docs
// page (spec §4.8 "Single-file import"). localPath is relative to the
// book directory.
func (m *Mirror) ImportFile(ctx context.Context, project model.ProjectCode, bookSlug, localPath string) (ImportOutcome, error) {
	content, err := readLocalFile(m.bookDir(project, bookSlug), localPath)
	if err != nil {
		return "", errkind.New(errkind.Retryable, "docsmirror.import", err)
	}

	row, tracked, err := m.Store.GetDocsPage(ctx, project, localPath)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if tracked && row.WithinEchoWindow(now, m.Config.echoWindow()) {
		return OutcomeSkippedEcho, nil
	}

	hash := hashContent(content)
	if tracked && row.ContentHash == hash {
		return OutcomeSkippedUnchanged, nil
	}

	pageID := ""
	if tracked {
		pageID = row.CanonicalPageID
	}

	if pageID == "" {
		title, ok := extractTitle(content)
		if !ok {
			return OutcomeSkippedNoTitle, nil
		}

		bookID, err := m.resolveBookID(ctx, bookSlug)
		if err != nil {
			return "", err
		}
		existing, err := m.Store.ListDocsPages(ctx, project)
		if err != nil {
			return "", err
		}
		chapterID, err := m.resolveChapterID(ctx, bookID, chapterSlugOf(localPath), existing, map[string]string{})
		if err != nil {
			return "", err
		}

		page, err := m.Docs.CreatePage(ctx, bookID, chapterID, title, string(content))
		if err != nil {
			return "", err
		}
		pageID = page.ID
		row.BookSlug = bookSlug
		row.ChapterID = chapterID
	} else {
		if err := m.Docs.UpdatePage(ctx, pageID, string(content)); err != nil {
			return "", err
		}
	}

	row.CanonicalPageID = pageID
	row.Project = project
	row.LocalPath = localPath
	row.ContentHash = hash
	row.RemoteContentHash = hash
	row.LocalModifiedAt = now
	row.RemoteModifiedAt = now
	row.LastImportAt = now
	row.SyncDirection = model.DirectionImport
	row.SyncStatus = model.PageStatusSynced

	if err := m.Store.UpsertDocsPage(ctx, row); err != nil {
		return "", err
	}
	return OutcomeImported, nil
}

// ScanResult tallies a directory import scan's classification, without
// acting on it (spec §4.8 "Directory import scan").
type ScanResult struct {
	Update []string
	Create []string
	Skip   map[string]string // localPath -> reason
}

// ScanDirectory classifies every markdown file under the book directory
// as update (tracked, hash changed, outside the echo window) or create
// (untracked, has a title), without writing anything.
func (m *Mirror) ScanDirectory(ctx context.Context, project model.ProjectCode, bookSlug string) (ScanResult, error) {
	result := ScanResult{Skip: map[string]string{}}
	dir := m.bookDir(project, bookSlug)

	paths, err := walkMarkdown(dir)
	if err != nil {
		return result, err
	}
	tracked, err := m.Store.ListDocsPages(ctx, project)
	if err != nil {
		return result, err
	}
	byPath := make(map[string]model.DocsPage, len(tracked))
	for _, row := range tracked {
		byPath[row.LocalPath] = row
	}

	now := time.Now()
	for _, path := range paths {
		content, err := readLocalFile(dir, path)
		if err != nil {
			result.Skip[path] = "read_error"
			continue
		}

		row, isTracked := byPath[path]
		if !isTracked {
			if _, ok := extractTitle(content); !ok {
				result.Skip[path] = string(OutcomeSkippedNoTitle)
				continue
			}
			result.Create = append(result.Create, path)
			continue
		}

		if row.WithinEchoWindow(now, m.Config.echoWindow()) {
			result.Skip[path] = string(OutcomeSkippedEcho)
			continue
		}
		if hashContent(content) == row.ContentHash {
			result.Skip[path] = string(OutcomeSkippedUnchanged)
			continue
		}
		result.Update = append(result.Update, path)
	}
	return result, nil
}

// ImportDirectory runs ScanDirectory then pushes every update/create
// entry through ImportFile, tallying outcomes.
func (m *Mirror) ImportDirectory(ctx context.Context, project model.ProjectCode, bookSlug string) (map[ImportOutcome]int, error) {
	scan, err := m.ScanDirectory(ctx, project, bookSlug)
	if err != nil {
		return nil, err
	}

	counts := make(map[ImportOutcome]int)
	for _, path := range append(append([]string{}, scan.Update...), scan.Create...) {
		outcome, err := m.ImportFile(ctx, project, bookSlug, path)
		if err != nil {
			m.logger().WithError(err).WithField("path", path).Warn("import failed")
			continue
		}
		counts[outcome]++
	}
	return counts, nil
}

// ReconcileResult tallies one bidirectional pass (spec §4.8 "Bidirectional
// reconcile").
type ReconcileResult struct {
	Exported      int
	Imported      int
	Conflicts     int
	DeletedLocal  int
	CreatedRemote int
	Warnings      []string
}

// Reconcile runs the single bidirectional pass spec §4.8 describes:
// classify every remote page by (localDeleted, remoteChanged,
// localChanged), resolve deletions, then pick up any untracked local
// file as a new remote page. Docs wins every simultaneous-edit
// conflict.
func (m *Mirror) Reconcile(ctx context.Context, project model.ProjectCode, bookSlug string) (ReconcileResult, error) {
	var result ReconcileResult
	dir := m.bookDir(project, bookSlug)

	bookID, err := m.resolveBookID(ctx, bookSlug)
	if err != nil {
		return result, err
	}
	remotePages, err := m.Docs.GetBookContents(ctx, bookID)
	if err != nil {
		return result, fmt.Errorf("docsmirror: get book contents: %w", err)
	}
	tracked, err := m.Store.ListDocsPages(ctx, project)
	if err != nil {
		return result, err
	}

	byRemoteID := make(map[string]model.DocsPage, len(tracked))
	for _, row := range tracked {
		if row.CanonicalPageID != "" {
			byRemoteID[row.CanonicalPageID] = row
		}
	}

	remoteSeen := make(map[string]bool, len(remotePages))
	now := time.Now()

	for _, ref := range remotePages {
		remoteSeen[ref.ID] = true

		row, isTracked := byRemoteID[ref.ID]
		if !isTracked {
			if err := m.exportNewRemotePage(ctx, project, bookSlug, dir, ref); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("export %s: %v", ref.ID, err))
				continue
			}
			result.Exported++
			continue
		}

		localContent, localErr := readLocalFile(dir, row.LocalPath)
		localDeleted := os.IsNotExist(localErr)

		remoteMarkdown, err := m.Docs.ExportPageMarkdown(ctx, ref.ID)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("export markdown %s: %v", ref.ID, err))
			continue
		}
		remoteHash := hashContent([]byte(remoteMarkdown))
		remoteChanged := remoteHash != row.RemoteContentHash
		localChanged := !localDeleted && hashContent(localContent) != row.ContentHash

		switch {
		case localDeleted && remoteChanged:
			if err := m.writeExportedPage(ctx, &row, dir, []byte(remoteMarkdown), remoteHash, now); err != nil {
				result.Warnings = append(result.Warnings, err.Error())
				continue
			}
			result.Exported++
		case localDeleted && !remoteChanged:
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s deleted locally with no remote change, leaving remote untouched", row.LocalPath))
		case remoteChanged && !localChanged:
			if err := m.writeExportedPage(ctx, &row, dir, []byte(remoteMarkdown), remoteHash, now); err != nil {
				result.Warnings = append(result.Warnings, err.Error())
				continue
			}
			result.Exported++
		case localChanged && !remoteChanged:
			if err := m.Docs.UpdatePage(ctx, ref.ID, string(localContent)); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("update %s: %v", ref.ID, err))
				continue
			}
			localHash := hashContent(localContent)
			row.ContentHash = localHash
			row.RemoteContentHash = localHash
			row.LocalModifiedAt = now
			row.RemoteModifiedAt = now
			row.SyncDirection = model.DirectionImport
			row.SyncStatus = model.PageStatusSynced
			if err := m.Store.UpsertDocsPage(ctx, row); err != nil {
				result.Warnings = append(result.Warnings, err.Error())
				continue
			}
			result.Imported++
		case localChanged && remoteChanged:
			// Docs wins (spec §4.8 step 1, testable property #5).
			if err := m.writeExportedPage(ctx, &row, dir, []byte(remoteMarkdown), remoteHash, now); err != nil {
				result.Warnings = append(result.Warnings, err.Error())
				continue
			}
			result.Conflicts++
			result.Exported++
		}
	}

	for _, row := range tracked {
		if row.CanonicalPageID == "" || remoteSeen[row.CanonicalPageID] {
			continue
		}
		if err := removeLocalFile(dir, row.LocalPath); err != nil {
			result.Warnings = append(result.Warnings, err.Error())
			continue
		}
		row.SyncStatus = model.PageStatusDeletedRemote
		if err := m.Store.UpsertDocsPage(ctx, row); err != nil {
			result.Warnings = append(result.Warnings, err.Error())
			continue
		}
		result.DeletedLocal++
	}

	trackedPaths := make(map[string]bool, len(tracked))
	for _, row := range tracked {
		trackedPaths[row.LocalPath] = true
	}
	localPaths, err := walkMarkdown(dir)
	if err != nil {
		return result, err
	}
	for _, path := range localPaths {
		if trackedPaths[path] {
			continue
		}
		outcome, err := m.ImportFile(ctx, project, bookSlug, path)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("create %s: %v", path, err))
			continue
		}
		if outcome == OutcomeImported {
			result.CreatedRemote++
		}
	}

	return result, nil
}

func (m *Mirror) writeExportedPage(ctx context.Context, row *model.DocsPage, dir string, content []byte, hash string, now time.Time) error {
	if err := writeLocalFile(dir, row.LocalPath, content); err != nil {
		return err
	}
	row.ContentHash = hash
	row.RemoteContentHash = hash
	row.LocalModifiedAt = now
	row.RemoteModifiedAt = now
	row.LastExportAt = now
	row.SyncDirection = model.DirectionExport
	row.SyncStatus = model.PageStatusSynced
	return m.Store.UpsertDocsPage(ctx, *row)
}

func (m *Mirror) exportNewRemotePage(ctx context.Context, project model.ProjectCode, bookSlug, dir string, ref adapters.DocsPageRef) error {
	markdown, err := m.Docs.ExportPageMarkdown(ctx, ref.ID)
	if err != nil {
		return err
	}
	localPath := exportedLocalPath(ref)
	now := time.Now()

	row := model.DocsPage{
		CanonicalPageID: ref.ID,
		BookSlug:        bookSlug,
		ChapterID:       ref.ChapterID,
		Project:         project,
		LocalPath:       localPath,
	}
	return m.writeExportedPage(ctx, &row, dir, []byte(markdown), hashContent([]byte(markdown)), now)
}

// exportedLocalPath places a freshly discovered remote page under its
// chapter (by chapter id, since the Docs adapter surface has no chapter
// slug/name lookup) and slugifies its title for the filename.
func exportedLocalPath(ref adapters.DocsPageRef) string {
	name := slugify(ref.Name) + ".md"
	if ref.ChapterID == "" {
		return name
	}
	return filepath.Join(ref.ChapterID, name)
}

func (m *Mirror) resolveBookID(ctx context.Context, bookSlug string) (string, error) {
	books, err := m.Docs.ListBooks(ctx)
	if err != nil {
		return "", fmt.Errorf("docsmirror: list books: %w", err)
	}
	for _, b := range books {
		if b.Slug == bookSlug {
			return b.ID, nil
		}
	}
	return "", errkind.NotFoundf("docsmirror.resolve_book", "no book with slug %q", bookSlug)
}

// resolveChapterID maps a local chapter slug to a Docs chapter id,
// reusing the id already recorded on a tracked page under that slug, or
// creating a new chapter when none exists yet (spec §4.8 "Auto-creates
// chapters when a file sits under a subdirectory whose slug doesn't
// match the book's").
func (m *Mirror) resolveChapterID(ctx context.Context, bookID, chapterSlug string, existing []model.DocsPage, cache map[string]string) (string, error) {
	if chapterSlug == "" {
		return "", nil
	}
	if id, ok := cache[chapterSlug]; ok {
		return id, nil
	}
	for _, row := range existing {
		if chapterSlugOf(row.LocalPath) == chapterSlug && row.ChapterID != "" {
			cache[chapterSlug] = row.ChapterID
			return row.ChapterID, nil
		}
	}
	id, err := m.Docs.CreateChapter(ctx, bookID, chapterSlug)
	if err != nil {
		return "", err
	}
	cache[chapterSlug] = id
	return id, nil
}
