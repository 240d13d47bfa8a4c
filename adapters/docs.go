package adapters

import (
	"context"

	"vibesync.dev/syncorch/model"
)

// DocsAdapter is the capability interface for the documentation platform's
// pages, books, and task peer (spec §6).
type DocsAdapter interface {
	ListBooks(ctx context.Context) ([]DocsBook, error)
	GetBookContents(ctx context.Context, bookID string) ([]DocsPageRef, error)
	GetPage(ctx context.Context, pageID string) (DocsPageContent, error)
	CreatePage(ctx context.Context, bookID, chapterID, name, markdown string) (DocsPageContent, error)
	UpdatePage(ctx context.Context, pageID, markdown string) error
	ExportPageMarkdown(ctx context.Context, pageID string) (string, error)
	CreateChapter(ctx context.Context, bookID, name string) (string, error)

	// Task peer surface (used by the C6 pipeline phase1/phase2).
	ListTasks(ctx context.Context, project model.ProjectCode) ([]DocsTaskItem, error)
	GetTask(ctx context.Context, id string) (DocsTaskItem, error)
	UpsertTask(ctx context.Context, item DocsTaskItem) (DocsTaskItem, error)
}

// DocsBook identifies a Docs platform "book" (spec §4.8 layout unit).
type DocsBook struct {
	ID   string
	Slug string
	Name string
}

// DocsPageRef is a lightweight listing entry from GetBookContents.
type DocsPageRef struct {
	ID        string
	ChapterID string
	Name      string
	UpdatedAt int64 // unix seconds, avoids importing time into this thin DTO
}

// DocsPageContent is a full page fetch/create/update payload.
type DocsPageContent struct {
	ID         string
	BookID     string
	ChapterID  string
	Name       string
	Markdown   string
	UpdatedAt  int64
	ContentRev string
}

// DocsTaskItem is the Docs-like peer's task mirror used in the project
// pipeline (spec §4.5 phase1/phase2).
type DocsTaskItem struct {
	ID          string
	Project     model.ProjectCode
	Title       string
	Description string
	Status      string
	ModifiedAt  int64
}

// NullDocs is a no-op DocsAdapter for tests.
type NullDocs struct{}

func (NullDocs) ListBooks(ctx context.Context) ([]DocsBook, error) { return nil, nil }
func (NullDocs) GetBookContents(ctx context.Context, bookID string) ([]DocsPageRef, error) {
	return nil, nil
}
func (NullDocs) GetPage(ctx context.Context, pageID string) (DocsPageContent, error) {
	return DocsPageContent{}, nil
}
func (NullDocs) CreatePage(ctx context.Context, bookID, chapterID, name, markdown string) (DocsPageContent, error) {
	return DocsPageContent{}, nil
}
func (NullDocs) UpdatePage(ctx context.Context, pageID, markdown string) error { return nil }
func (NullDocs) ExportPageMarkdown(ctx context.Context, pageID string) (string, error) {
	return "", nil
}
func (NullDocs) CreateChapter(ctx context.Context, bookID, name string) (string, error) {
	return "", nil
}
func (NullDocs) ListTasks(ctx context.Context, project model.ProjectCode) ([]DocsTaskItem, error) {
	return nil, nil
}
func (NullDocs) GetTask(ctx context.Context, id string) (DocsTaskItem, error) {
	return DocsTaskItem{}, nil
}
func (NullDocs) UpsertTask(ctx context.Context, item DocsTaskItem) (DocsTaskItem, error) {
	return item, nil
}
