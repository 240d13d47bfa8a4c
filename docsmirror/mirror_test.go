package docsmirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/syncstate"
)

type fakeDocs struct {
	adapters.NullDocs
	books     []adapters.DocsBook
	contents  map[string][]adapters.DocsPageRef // bookID -> refs
	markdown  map[string]string                 // pageID -> markdown
	updates   map[string]string                 // pageID -> last pushed markdown
	nextPage  int
	nextChap  int
	createErr error
}

func (f *fakeDocs) ListBooks(ctx context.Context) ([]adapters.DocsBook, error) {
	return f.books, nil
}

func (f *fakeDocs) GetBookContents(ctx context.Context, bookID string) ([]adapters.DocsPageRef, error) {
	return f.contents[bookID], nil
}

func (f *fakeDocs) ExportPageMarkdown(ctx context.Context, pageID string) (string, error) {
	return f.markdown[pageID], nil
}

func (f *fakeDocs) UpdatePage(ctx context.Context, pageID, markdown string) error {
	if f.updates == nil {
		f.updates = make(map[string]string)
	}
	f.updates[pageID] = markdown
	f.markdown[pageID] = markdown
	return nil
}

func (f *fakeDocs) CreatePage(ctx context.Context, bookID, chapterID, name, markdown string) (adapters.DocsPageContent, error) {
	if f.createErr != nil {
		return adapters.DocsPageContent{}, f.createErr
	}
	f.nextPage++
	id := "page-" + itoa(f.nextPage)
	if f.markdown == nil {
		f.markdown = make(map[string]string)
	}
	f.markdown[id] = markdown
	return adapters.DocsPageContent{ID: id, BookID: bookID, ChapterID: chapterID, Name: name, Markdown: markdown}, nil
}

func (f *fakeDocs) CreateChapter(ctx context.Context, bookID, name string) (string, error) {
	f.nextChap++
	return "chapter-" + itoa(f.nextChap), nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newTestStore(t *testing.T) syncstate.Store {
	t.Helper()
	store, err := syncstate.OpenBoltStore(filepath.Join(t.TempDir(), "syncstate.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func newTestMirror(t *testing.T, docs *fakeDocs) (*Mirror, string) {
	t.Helper()
	workDir := t.TempDir()
	return &Mirror{
		Docs:    docs,
		Store:   newTestStore(t),
		WorkDir: workDir,
	}, workDir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestImportFile_CreatesNewPageRequiringTitle(t *testing.T) {
	docs := &fakeDocs{books: []adapters.DocsBook{{ID: "book-1", Slug: "handbook"}}}
	m, workDir := newTestMirror(t, docs)
	bookDir := m.bookDir("ACME", "handbook")
	writeFile(t, bookDir, "intro.md", "# Intro\n\nHello.")

	outcome, err := m.ImportFile(context.Background(), "ACME", "handbook", "intro.md")
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, outcome)
	assert.Len(t, docs.markdown, 1)

	row, ok, err := m.Store.GetDocsPage(context.Background(), "ACME", "intro.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, row.CanonicalPageID)
	_ = workDir
}

func TestImportFile_SkipsCreateWithoutTitleHeading(t *testing.T) {
	docs := &fakeDocs{books: []adapters.DocsBook{{ID: "book-1", Slug: "handbook"}}}
	m, _ := newTestMirror(t, docs)
	bookDir := m.bookDir("ACME", "handbook")
	writeFile(t, bookDir, "notitle.md", "just some text, no heading")

	outcome, err := m.ImportFile(context.Background(), "ACME", "handbook", "notitle.md")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedNoTitle, outcome)
	assert.Empty(t, docs.markdown)
}

func TestImportFile_SkipsWithinEchoWindow(t *testing.T) {
	docs := &fakeDocs{books: []adapters.DocsBook{{ID: "book-1", Slug: "handbook"}}}
	m, _ := newTestMirror(t, docs)
	bookDir := m.bookDir("ACME", "handbook")
	writeFile(t, bookDir, "page.md", "# Page\n\nv2")

	_, err := m.Store.GetDocsPage(context.Background(), "ACME", "page.md")
	require.NoError(t, err)
	err = m.Store.UpsertDocsPage(context.Background(), model.DocsPage{
		CanonicalPageID: "page-1",
		Project:         "ACME",
		LocalPath:       "page.md",
		ContentHash:     "stale-hash",
		LastExportAt:    time.Now(),
	})
	require.NoError(t, err)

	outcome, err := m.ImportFile(context.Background(), "ACME", "handbook", "page.md")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedEcho, outcome)
}

func TestImportFile_SkipsWhenHashUnchanged(t *testing.T) {
	docs := &fakeDocs{books: []adapters.DocsBook{{ID: "book-1", Slug: "handbook"}}}
	m, _ := newTestMirror(t, docs)
	bookDir := m.bookDir("ACME", "handbook")
	content := "# Page\n\nunchanged"
	writeFile(t, bookDir, "page.md", content)

	err := m.Store.UpsertDocsPage(context.Background(), model.DocsPage{
		CanonicalPageID: "page-1",
		Project:         "ACME",
		LocalPath:       "page.md",
		ContentHash:     hashContent([]byte(content)),
	})
	require.NoError(t, err)

	outcome, err := m.ImportFile(context.Background(), "ACME", "handbook", "page.md")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedUnchanged, outcome)
}

func TestReconcile_BothChangedDocsWins(t *testing.T) {
	docs := &fakeDocs{
		books:    []adapters.DocsBook{{ID: "book-1", Slug: "handbook"}},
		contents: map[string][]adapters.DocsPageRef{"book-1": {{ID: "page-1", Name: "Page"}}},
		markdown: map[string]string{"page-1": "# Page\n\nremote version B"},
	}
	m, _ := newTestMirror(t, docs)
	bookDir := m.bookDir("ACME", "handbook")
	writeFile(t, bookDir, "page.md", "# Page\n\nlocal version A-prime")

	err := m.Store.UpsertDocsPage(context.Background(), model.DocsPage{
		CanonicalPageID:   "page-1",
		Project:           "ACME",
		LocalPath:         "page.md",
		ContentHash:       hashContent([]byte("# Page\n\noriginal")),
		RemoteContentHash: hashContent([]byte("# Page\n\noriginal")),
	})
	require.NoError(t, err)

	result, err := m.Reconcile(context.Background(), "ACME", "handbook")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 1, result.Exported)

	got, err := readLocalFile(bookDir, "page.md")
	require.NoError(t, err)
	assert.Equal(t, "# Page\n\nremote version B", string(got))

	row, ok, err := m.Store.GetDocsPage(context.Background(), "ACME", "page.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hashContent([]byte("# Page\n\nremote version B")), row.ContentHash)
	assert.Equal(t, model.DirectionExport, row.SyncDirection)
}

func TestReconcile_UntrackedRemotePageIsExported(t *testing.T) {
	docs := &fakeDocs{
		books:    []adapters.DocsBook{{ID: "book-1", Slug: "handbook"}},
		contents: map[string][]adapters.DocsPageRef{"book-1": {{ID: "page-9", Name: "New Page"}}},
		markdown: map[string]string{"page-9": "# New Page\n\nbody"},
	}
	m, _ := newTestMirror(t, docs)
	bookDir := m.bookDir("ACME", "handbook")

	result, err := m.Reconcile(context.Background(), "ACME", "handbook")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Exported)

	got, err := readLocalFile(bookDir, "new-page.md")
	require.NoError(t, err)
	assert.Equal(t, "# New Page\n\nbody", string(got))
}

func TestReconcile_RemoteDeletedPageRemovesLocalFile(t *testing.T) {
	docs := &fakeDocs{
		books:    []adapters.DocsBook{{ID: "book-1", Slug: "handbook"}},
		contents: map[string][]adapters.DocsPageRef{"book-1": {}},
		markdown: map[string]string{},
	}
	m, _ := newTestMirror(t, docs)
	bookDir := m.bookDir("ACME", "handbook")
	writeFile(t, bookDir, "gone.md", "# Gone\n\nbody")

	err := m.Store.UpsertDocsPage(context.Background(), model.DocsPage{
		CanonicalPageID: "page-deleted",
		Project:         "ACME",
		LocalPath:       "gone.md",
		ContentHash:     hashContent([]byte("# Gone\n\nbody")),
	})
	require.NoError(t, err)

	result, err := m.Reconcile(context.Background(), "ACME", "handbook")
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeletedLocal)

	_, err = readLocalFile(bookDir, "gone.md")
	assert.True(t, os.IsNotExist(err))

	row, ok, err := m.Store.GetDocsPage(context.Background(), "ACME", "gone.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.PageStatusDeletedRemote, row.SyncStatus)
}

func TestReconcile_LocalOnlyFileIsCreatedRemote(t *testing.T) {
	docs := &fakeDocs{
		books:    []adapters.DocsBook{{ID: "book-1", Slug: "handbook"}},
		contents: map[string][]adapters.DocsPageRef{"book-1": {}},
		markdown: map[string]string{},
	}
	m, _ := newTestMirror(t, docs)
	bookDir := m.bookDir("ACME", "handbook")
	writeFile(t, bookDir, "brandnew.md", "# Brand New\n\nbody")

	result, err := m.Reconcile(context.Background(), "ACME", "handbook")
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreatedRemote)
	assert.Len(t, docs.markdown, 1)
}
