package syncstate

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vibesync.dev/syncorch/model"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const changesChannel = "sync_state_changes"

// PostgresStore is the production Store, backed by pgx/pgxpool with
// change notification over LISTEN/NOTIFY.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and applies pending migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("syncstate: failed to connect: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("syncstate: failed to read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("syncstate: failed to read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("syncstate: migration %s failed: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

// Get returns the row for id, or ok=false if no row exists.
func (s *PostgresStore) Get(ctx context.Context, id model.CanonicalID) (model.SyncStateRow, bool, error) {
	const query = `
		SELECT canonical_id, project, title, description, status, priority,
		       tracker_id, tracker_modified_at, tracker_status,
		       repolog_id, repolog_modified_at, repolog_status,
		       docs_task_id, docs_modified_at, docs_status,
		       parent_canonical, parent_repolog_id,
		       deleted, deleted_at, created_at, updated_at
		FROM sync_state
		WHERE canonical_id = $1`

	row, err := scanRow(s.pool.QueryRow(ctx, query, string(id)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.SyncStateRow{}, false, nil
		}
		return model.SyncStateRow{}, false, fmt.Errorf("syncstate: get %s: %w", id, err)
	}
	return row, true, nil
}

// Upsert applies update, leaving nil fields unchanged on the existing
// row (spec §4.2).
func (s *PostgresStore) Upsert(ctx context.Context, update model.SyncStateUpdate) (model.SyncStateRow, error) {
	const query = `
		INSERT INTO sync_state (
			canonical_id, project, title, description, status, priority,
			tracker_id, tracker_modified_at, tracker_status,
			repolog_id, repolog_modified_at, repolog_status,
			docs_task_id, docs_modified_at, docs_status,
			parent_canonical, parent_repolog_id, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (canonical_id) DO UPDATE SET
			project             = EXCLUDED.project,
			title               = COALESCE($3, sync_state.title),
			description         = COALESCE($4, sync_state.description),
			status              = COALESCE($5, sync_state.status),
			priority            = COALESCE($6, sync_state.priority),
			tracker_id          = COALESCE($7, sync_state.tracker_id),
			tracker_modified_at = COALESCE($8, sync_state.tracker_modified_at),
			tracker_status      = COALESCE($9, sync_state.tracker_status),
			repolog_id          = COALESCE($10, sync_state.repolog_id),
			repolog_modified_at = COALESCE($11, sync_state.repolog_modified_at),
			repolog_status      = COALESCE($12, sync_state.repolog_status),
			docs_task_id        = COALESCE($13, sync_state.docs_task_id),
			docs_modified_at    = COALESCE($14, sync_state.docs_modified_at),
			docs_status         = COALESCE($15, sync_state.docs_status),
			parent_canonical    = COALESCE($16, sync_state.parent_canonical),
			parent_repolog_id   = COALESCE($17, sync_state.parent_repolog_id),
			updated_at          = NOW()
		RETURNING canonical_id, project, title, description, status, priority,
		          tracker_id, tracker_modified_at, tracker_status,
		          repolog_id, repolog_modified_at, repolog_status,
		          docs_task_id, docs_modified_at, docs_status,
		          parent_canonical, parent_repolog_id,
		          deleted, deleted_at, created_at, updated_at`

	var parentCanonical *string
	if update.ParentCanonical != nil {
		v := string(*update.ParentCanonical)
		parentCanonical = &v
	}

	row, err := scanRow(s.pool.QueryRow(ctx, query,
		string(update.CanonicalID), string(update.Project),
		update.Title, update.Description, update.Status, update.Priority,
		update.TrackerID, update.TrackerModifiedAt, update.TrackerStatus,
		update.RepoLogID, update.RepoLogModifiedAt, update.RepoLogStatus,
		update.DocsTaskID, update.DocsModifiedAt, update.DocsStatus,
		parentCanonical, update.ParentRepoLogID,
	))
	if err != nil {
		return model.SyncStateRow{}, fmt.Errorf("syncstate: upsert %s: %w", update.CanonicalID, err)
	}
	return row, nil
}

// UpsertBatch applies every update inside a single transaction: either all
// rows commit or, on any error, none do (spec §4.2 "all-or-nothing").
func (s *PostgresStore) UpsertBatch(ctx context.Context, updates []model.SyncStateUpdate) ([]model.SyncStateRow, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	const query = `
		INSERT INTO sync_state (
			canonical_id, project, title, description, status, priority,
			tracker_id, tracker_modified_at, tracker_status,
			repolog_id, repolog_modified_at, repolog_status,
			docs_task_id, docs_modified_at, docs_status,
			parent_canonical, parent_repolog_id, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (canonical_id) DO UPDATE SET
			project             = EXCLUDED.project,
			title               = COALESCE($3, sync_state.title),
			description         = COALESCE($4, sync_state.description),
			status              = COALESCE($5, sync_state.status),
			priority            = COALESCE($6, sync_state.priority),
			tracker_id          = COALESCE($7, sync_state.tracker_id),
			tracker_modified_at = COALESCE($8, sync_state.tracker_modified_at),
			tracker_status      = COALESCE($9, sync_state.tracker_status),
			repolog_id          = COALESCE($10, sync_state.repolog_id),
			repolog_modified_at = COALESCE($11, sync_state.repolog_modified_at),
			repolog_status      = COALESCE($12, sync_state.repolog_status),
			docs_task_id        = COALESCE($13, sync_state.docs_task_id),
			docs_modified_at    = COALESCE($14, sync_state.docs_modified_at),
			docs_status         = COALESCE($15, sync_state.docs_status),
			parent_canonical    = COALESCE($16, sync_state.parent_canonical),
			parent_repolog_id   = COALESCE($17, sync_state.parent_repolog_id),
			updated_at          = NOW()
		RETURNING canonical_id, project, title, description, status, priority,
		          tracker_id, tracker_modified_at, tracker_status,
		          repolog_id, repolog_modified_at, repolog_status,
		          docs_task_id, docs_modified_at, docs_status,
		          parent_canonical, parent_repolog_id,
		          deleted, deleted_at, created_at, updated_at`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncstate: upsert batch: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows := make([]model.SyncStateRow, 0, len(updates))
	for _, update := range updates {
		var parentCanonical *string
		if update.ParentCanonical != nil {
			v := string(*update.ParentCanonical)
			parentCanonical = &v
		}

		row, err := scanRow(tx.QueryRow(ctx, query,
			string(update.CanonicalID), string(update.Project),
			update.Title, update.Description, update.Status, update.Priority,
			update.TrackerID, update.TrackerModifiedAt, update.TrackerStatus,
			update.RepoLogID, update.RepoLogModifiedAt, update.RepoLogStatus,
			update.DocsTaskID, update.DocsModifiedAt, update.DocsStatus,
			parentCanonical, update.ParentRepoLogID,
		))
		if err != nil {
			return nil, fmt.Errorf("syncstate: upsert batch %s: %w", update.CanonicalID, err)
		}
		rows = append(rows, row)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("syncstate: upsert batch: commit: %w", err)
	}
	return rows, nil
}

// GetTimestamps is the conflict check's hot path (spec §4.2): it selects
// only the three per-system modification-time columns, not the full row.
func (s *PostgresStore) GetTimestamps(ctx context.Context, id model.CanonicalID) (model.SyncStateTimestamps, bool, error) {
	const query = `
		SELECT tracker_modified_at, repolog_modified_at, docs_modified_at
		FROM sync_state WHERE canonical_id = $1`

	var trackerModifiedAt, repoLogModifiedAt, docsModifiedAt *time.Time
	err := s.pool.QueryRow(ctx, query, string(id)).Scan(&trackerModifiedAt, &repoLogModifiedAt, &docsModifiedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.SyncStateTimestamps{}, false, nil
		}
		return model.SyncStateTimestamps{}, false, fmt.Errorf("syncstate: get timestamps %s: %w", id, err)
	}
	return model.SyncStateTimestamps{
		TrackerModifiedAt: timeOrZero(trackerModifiedAt),
		RepoLogModifiedAt: timeOrZero(repoLogModifiedAt),
		DocsModifiedAt:    timeOrZero(docsModifiedAt),
	}, true, nil
}

// GetStateBatch returns every row found among ids in one query, keyed by
// CanonicalID; an id with no row is simply absent from the result.
func (s *PostgresStore) GetStateBatch(ctx context.Context, ids []model.CanonicalID) (map[model.CanonicalID]model.SyncStateRow, error) {
	out := make(map[model.CanonicalID]model.SyncStateRow, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	const query = `
		SELECT canonical_id, project, title, description, status, priority,
		       tracker_id, tracker_modified_at, tracker_status,
		       repolog_id, repolog_modified_at, repolog_status,
		       docs_task_id, docs_modified_at, docs_status,
		       parent_canonical, parent_repolog_id,
		       deleted, deleted_at, created_at, updated_at
		FROM sync_state
		WHERE canonical_id = ANY($1)`

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = string(id)
	}

	rows, err := s.pool.Query(ctx, query, strIDs)
	if err != nil {
		return nil, fmt.Errorf("syncstate: get state batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("syncstate: get state batch: %w", err)
		}
		out[row.CanonicalID] = row
	}
	return out, rows.Err()
}

// ListByProject returns every non-deleted row for project.
func (s *PostgresStore) ListByProject(ctx context.Context, project model.ProjectCode) ([]model.SyncStateRow, error) {
	const query = `
		SELECT canonical_id, project, title, description, status, priority,
		       tracker_id, tracker_modified_at, tracker_status,
		       repolog_id, repolog_modified_at, repolog_status,
		       docs_task_id, docs_modified_at, docs_status,
		       parent_canonical, parent_repolog_id,
		       deleted, deleted_at, created_at, updated_at
		FROM sync_state
		WHERE project = $1 AND NOT deleted
		ORDER BY canonical_id`

	rows, err := s.pool.Query(ctx, query, string(project))
	if err != nil {
		return nil, fmt.Errorf("syncstate: list %s: %w", project, err)
	}
	defer rows.Close()

	var out []model.SyncStateRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("syncstate: list %s: %w", project, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListProjects returns every distinct project code with at least one
// non-deleted row.
func (s *PostgresStore) ListProjects(ctx context.Context) ([]model.ProjectCode, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT project FROM sync_state WHERE NOT deleted ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("syncstate: list projects: %w", err)
	}
	defer rows.Close()

	var out []model.ProjectCode
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("syncstate: list projects: %w", err)
		}
		out = append(out, model.ProjectCode(p))
	}
	return out, rows.Err()
}

// MarkDeleted flips the Deleted flag for id (spec §4.6 mark_deleted).
func (s *PostgresStore) MarkDeleted(ctx context.Context, id model.CanonicalID, scope model.DeleteScope) error {
	result, err := s.pool.Exec(ctx,
		`UPDATE sync_state SET deleted = TRUE, deleted_at = NOW(), updated_at = NOW() WHERE canonical_id = $1`,
		string(id))
	if err != nil {
		return fmt.Errorf("syncstate: mark deleted %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("syncstate: mark deleted %s: row not found", id)
	}
	return nil
}

// HardDelete removes the row entirely (spec §4.6 hard_delete).
func (s *PostgresStore) HardDelete(ctx context.Context, id model.CanonicalID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sync_state WHERE canonical_id = $1`, string(id)); err != nil {
		return fmt.Errorf("syncstate: hard delete %s: %w", id, err)
	}
	return nil
}

// WatchChanges LISTENs on the sync_state_changes channel and streams
// parsed events until ctx is cancelled.
func (s *PostgresStore) WatchChanges(ctx context.Context) (<-chan ChangeEvent, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncstate: watch: acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changesChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("syncstate: watch: listen: %w", err)
	}

	out := make(chan ChangeEvent, 64)
	go func() {
		defer conn.Release()
		defer close(out)
		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				return
			}
			var payload struct {
				CanonicalID string `json:"canonical_id"`
				Project     string `json:"project"`
				Deleted     bool   `json:"deleted"`
			}
			if err := json.Unmarshal([]byte(notification.Payload), &payload); err != nil {
				continue
			}
			event := ChangeEvent{
				CanonicalID: model.CanonicalID(payload.CanonicalID),
				Project:     model.ProjectCode(payload.Project),
				Deleted:     payload.Deleted,
				OccurredAt:  time.Now(),
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// GetDocsPage returns the docs_pages row for (project, localPath).
func (s *PostgresStore) GetDocsPage(ctx context.Context, project model.ProjectCode, localPath string) (model.DocsPage, bool, error) {
	const query = `
		SELECT project, local_path, canonical_page_id, book_slug, chapter_id,
		       content_hash, remote_content_hash,
		       local_modified_at, remote_modified_at, last_export_at, last_import_at,
		       sync_direction, sync_status
		FROM docs_pages WHERE project = $1 AND local_path = $2`

	page, err := scanDocsPage(s.pool.QueryRow(ctx, query, string(project), localPath))
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.DocsPage{}, false, nil
		}
		return model.DocsPage{}, false, fmt.Errorf("syncstate: get docs page %s/%s: %w", project, localPath, err)
	}
	return page, true, nil
}

// UpsertDocsPage writes page in full (no partial-update semantics; the
// Docs mirror always has the complete row in hand).
func (s *PostgresStore) UpsertDocsPage(ctx context.Context, page model.DocsPage) error {
	const query = `
		INSERT INTO docs_pages (
			project, local_path, canonical_page_id, book_slug, chapter_id,
			content_hash, remote_content_hash,
			local_modified_at, remote_modified_at, last_export_at, last_import_at,
			sync_direction, sync_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (project, local_path) DO UPDATE SET
			canonical_page_id   = EXCLUDED.canonical_page_id,
			book_slug           = EXCLUDED.book_slug,
			chapter_id          = EXCLUDED.chapter_id,
			content_hash        = EXCLUDED.content_hash,
			remote_content_hash = EXCLUDED.remote_content_hash,
			local_modified_at   = EXCLUDED.local_modified_at,
			remote_modified_at  = EXCLUDED.remote_modified_at,
			last_export_at      = EXCLUDED.last_export_at,
			last_import_at      = EXCLUDED.last_import_at,
			sync_direction      = EXCLUDED.sync_direction,
			sync_status         = EXCLUDED.sync_status`

	_, err := s.pool.Exec(ctx, query,
		string(page.Project), page.LocalPath, page.CanonicalPageID, page.BookSlug, page.ChapterID,
		page.ContentHash, page.RemoteContentHash,
		nullableTime(page.LocalModifiedAt), nullableTime(page.RemoteModifiedAt),
		nullableTime(page.LastExportAt), nullableTime(page.LastImportAt),
		string(page.SyncDirection), string(page.SyncStatus),
	)
	if err != nil {
		return fmt.Errorf("syncstate: upsert docs page %s/%s: %w", page.Project, page.LocalPath, err)
	}
	return nil
}

// ListDocsPages returns every page tracked for project.
func (s *PostgresStore) ListDocsPages(ctx context.Context, project model.ProjectCode) ([]model.DocsPage, error) {
	const query = `
		SELECT project, local_path, canonical_page_id, book_slug, chapter_id,
		       content_hash, remote_content_hash,
		       local_modified_at, remote_modified_at, last_export_at, last_import_at,
		       sync_direction, sync_status
		FROM docs_pages WHERE project = $1 ORDER BY local_path`

	rows, err := s.pool.Query(ctx, query, string(project))
	if err != nil {
		return nil, fmt.Errorf("syncstate: list docs pages %s: %w", project, err)
	}
	defer rows.Close()

	var out []model.DocsPage
	for rows.Next() {
		page, err := scanDocsPage(rows)
		if err != nil {
			return nil, fmt.Errorf("syncstate: list docs pages %s: %w", project, err)
		}
		out = append(out, page)
	}
	return out, rows.Err()
}

// SetLastExport records the last full-book export time for project, a
// project-wide bookkeeping value distinct from any single DocsPage row's
// own LastExportAt.
func (s *PostgresStore) SetLastExport(ctx context.Context, project model.ProjectCode, t time.Time) error {
	const query = `
		INSERT INTO project_export (project, last_export_at) VALUES ($1, $2)
		ON CONFLICT (project) DO UPDATE SET last_export_at = EXCLUDED.last_export_at`

	if _, err := s.pool.Exec(ctx, query, string(project), t); err != nil {
		return fmt.Errorf("syncstate: set last export %s: %w", project, err)
	}
	return nil
}

// rowScanner abstracts over pgx.Row/pgx.Rows so scanRow/scanDocsPage work
// against both QueryRow and Query results.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (model.SyncStateRow, error) {
	var row model.SyncStateRow
	var canonicalID, project, parentCanonical string
	var trackerModifiedAt, repoLogModifiedAt, docsModifiedAt, deletedAt *time.Time

	err := r.Scan(
		&canonicalID, &project, &row.Title, &row.Description, &row.Status, &row.Priority,
		&row.TrackerID, &trackerModifiedAt, &row.TrackerStatus,
		&row.RepoLogID, &repoLogModifiedAt, &row.RepoLogStatus,
		&row.DocsTaskID, &docsModifiedAt, &row.DocsStatus,
		&parentCanonical, &row.ParentRepoLogID,
		&row.Deleted, &deletedAt, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return model.SyncStateRow{}, err
	}

	row.CanonicalID = model.CanonicalID(canonicalID)
	row.Project = model.ProjectCode(project)
	row.ParentCanonical = model.CanonicalID(parentCanonical)
	row.TrackerModifiedAt = timeOrZero(trackerModifiedAt)
	row.RepoLogModifiedAt = timeOrZero(repoLogModifiedAt)
	row.DocsModifiedAt = timeOrZero(docsModifiedAt)
	row.DeletedAt = timeOrZero(deletedAt)
	return row, nil
}

func scanDocsPage(r rowScanner) (model.DocsPage, error) {
	var page model.DocsPage
	var project string
	var localModifiedAt, remoteModifiedAt, lastExportAt, lastImportAt *time.Time
	var direction, status string

	err := r.Scan(
		&project, &page.LocalPath, &page.CanonicalPageID, &page.BookSlug, &page.ChapterID,
		&page.ContentHash, &page.RemoteContentHash,
		&localModifiedAt, &remoteModifiedAt, &lastExportAt, &lastImportAt,
		&direction, &status,
	)
	if err != nil {
		return model.DocsPage{}, err
	}

	page.Project = model.ProjectCode(project)
	page.LocalModifiedAt = timeOrZero(localModifiedAt)
	page.RemoteModifiedAt = timeOrZero(remoteModifiedAt)
	page.LastExportAt = timeOrZero(lastExportAt)
	page.LastImportAt = timeOrZero(lastImportAt)
	page.SyncDirection = model.SyncDirection(direction)
	page.SyncStatus = model.PageSyncStatus(status)
	return page, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
