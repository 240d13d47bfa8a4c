package syncstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"vibesync.dev/syncorch/model"
)

var (
	syncStateBucket  = []byte("sync_state")
	docsPageBucket   = []byte("docs_pages")
	lastExportBucket = []byte("docs_last_export")
)

// BoltStore is the embedded, single-process Store tier for local and dev
// runs (spec §4.2 / SPEC_FULL "Embedded/dev store tier"). WatchChanges
// fans out in-process only; there is no cross-process LISTEN/NOTIFY
// equivalent, so a BoltStore-backed deployment must run a single
// orchestrator process.
type BoltStore struct {
	db *bolt.DB

	mu   sync.Mutex
	subs []chan ChangeEvent
}

// OpenBoltStore opens or creates a bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("syncstate: failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(syncStateBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(docsPageBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(lastExportBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("syncstate: failed to create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() { s.db.Close() }

func (s *BoltStore) Get(ctx context.Context, id model.CanonicalID) (model.SyncStateRow, bool, error) {
	var row model.SyncStateRow
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(syncStateBucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &row)
	})
	if err != nil {
		return model.SyncStateRow{}, false, fmt.Errorf("syncstate: get %s: %w", id, err)
	}
	return row, found, nil
}

func (s *BoltStore) Upsert(ctx context.Context, update model.SyncStateUpdate) (model.SyncStateRow, error) {
	var row model.SyncStateRow
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(syncStateBucket)
		key := []byte(update.CanonicalID)

		if data := b.Get(key); data != nil {
			if err := json.Unmarshal(data, &row); err != nil {
				return err
			}
		} else {
			row = model.SyncStateRow{
				CanonicalID: update.CanonicalID,
				Project:     update.Project,
				CreatedAt:   time.Now(),
			}
		}

		row.Project = update.Project
		applyUpdate(&row, update)
		row.UpdatedAt = time.Now()

		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return model.SyncStateRow{}, fmt.Errorf("syncstate: upsert %s: %w", update.CanonicalID, err)
	}
	s.publish(ChangeEvent{CanonicalID: row.CanonicalID, Project: row.Project, OccurredAt: time.Now()})
	return row, nil
}

func applyUpdate(row *model.SyncStateRow, u model.SyncStateUpdate) {
	if u.Title != nil {
		row.Title = *u.Title
	}
	if u.Description != nil {
		row.Description = *u.Description
	}
	if u.Status != nil {
		row.Status = *u.Status
	}
	if u.Priority != nil {
		row.Priority = *u.Priority
	}
	if u.TrackerID != nil {
		row.TrackerID = *u.TrackerID
	}
	if u.TrackerModifiedAt != nil {
		row.TrackerModifiedAt = *u.TrackerModifiedAt
	}
	if u.TrackerStatus != nil {
		row.TrackerStatus = *u.TrackerStatus
	}
	if u.RepoLogID != nil {
		row.RepoLogID = *u.RepoLogID
	}
	if u.RepoLogModifiedAt != nil {
		row.RepoLogModifiedAt = *u.RepoLogModifiedAt
	}
	if u.RepoLogStatus != nil {
		row.RepoLogStatus = *u.RepoLogStatus
	}
	if u.DocsTaskID != nil {
		row.DocsTaskID = *u.DocsTaskID
	}
	if u.DocsModifiedAt != nil {
		row.DocsModifiedAt = *u.DocsModifiedAt
	}
	if u.DocsStatus != nil {
		row.DocsStatus = *u.DocsStatus
	}
	if u.ParentCanonical != nil {
		row.ParentCanonical = *u.ParentCanonical
	}
	if u.ParentRepoLogID != nil {
		row.ParentRepoLogID = *u.ParentRepoLogID
	}
}

// UpsertBatch applies every update inside one bolt transaction: either all
// rows are written or, on any error, none are (spec §4.2 "all-or-nothing").
func (s *BoltStore) UpsertBatch(ctx context.Context, updates []model.SyncStateUpdate) ([]model.SyncStateRow, error) {
	rows := make([]model.SyncStateRow, len(updates))
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(syncStateBucket)
		for i, update := range updates {
			key := []byte(update.CanonicalID)

			var row model.SyncStateRow
			if data := b.Get(key); data != nil {
				if err := json.Unmarshal(data, &row); err != nil {
					return err
				}
			} else {
				row = model.SyncStateRow{
					CanonicalID: update.CanonicalID,
					Project:     update.Project,
					CreatedAt:   time.Now(),
				}
			}

			row.Project = update.Project
			applyUpdate(&row, update)
			row.UpdatedAt = time.Now()

			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
			rows[i] = row
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("syncstate: upsert batch: %w", err)
	}
	for _, row := range rows {
		s.publish(ChangeEvent{CanonicalID: row.CanonicalID, Project: row.Project, OccurredAt: time.Now()})
	}
	return rows, nil
}

// GetTimestamps is the conflict check's hot path: it unmarshals the row but
// returns only the three per-system modification times.
func (s *BoltStore) GetTimestamps(ctx context.Context, id model.CanonicalID) (model.SyncStateTimestamps, bool, error) {
	row, found, err := s.Get(ctx, id)
	if err != nil {
		return model.SyncStateTimestamps{}, false, err
	}
	return row.Timestamps(), found, nil
}

func (s *BoltStore) GetStateBatch(ctx context.Context, ids []model.CanonicalID) (map[model.CanonicalID]model.SyncStateRow, error) {
	out := make(map[model.CanonicalID]model.SyncStateRow, len(ids))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(syncStateBucket)
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var row model.SyncStateRow
			if err := json.Unmarshal(data, &row); err != nil {
				return err
			}
			out[id] = row
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("syncstate: get state batch: %w", err)
	}
	return out, nil
}

func (s *BoltStore) ListByProject(ctx context.Context, project model.ProjectCode) ([]model.SyncStateRow, error) {
	var out []model.SyncStateRow
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(syncStateBucket).ForEach(func(k, v []byte) error {
			var row model.SyncStateRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if row.Project == project && !row.Deleted {
				out = append(out, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("syncstate: list %s: %w", project, err)
	}
	return out, nil
}

func (s *BoltStore) ListProjects(ctx context.Context) ([]model.ProjectCode, error) {
	seen := map[model.ProjectCode]bool{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(syncStateBucket).ForEach(func(k, v []byte) error {
			var row model.SyncStateRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if !row.Deleted {
				seen[row.Project] = true
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("syncstate: list projects: %w", err)
	}
	out := make([]model.ProjectCode, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out, nil
}

func (s *BoltStore) MarkDeleted(ctx context.Context, id model.CanonicalID, scope model.DeleteScope) error {
	var project model.ProjectCode
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(syncStateBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("row not found")
		}
		var row model.SyncStateRow
		if err := json.Unmarshal(data, &row); err != nil {
			return err
		}
		row.Deleted = true
		row.DeletedAt = time.Now()
		project = row.Project
		out, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
	if err != nil {
		return fmt.Errorf("syncstate: mark deleted %s: %w", id, err)
	}
	s.publish(ChangeEvent{CanonicalID: id, Project: project, Deleted: true, OccurredAt: time.Now()})
	return nil
}

func (s *BoltStore) HardDelete(ctx context.Context, id model.CanonicalID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(syncStateBucket).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("syncstate: hard delete %s: %w", id, err)
	}
	s.publish(ChangeEvent{CanonicalID: id, Deleted: true, OccurredAt: time.Now()})
	return nil
}

// WatchChanges returns a channel fed by every Upsert/MarkDeleted/
// HardDelete call made on this BoltStore instance for the lifetime of
// ctx. Unlike PostgresStore, this has no cross-process reach.
func (s *BoltStore) WatchChanges(ctx context.Context) (<-chan ChangeEvent, error) {
	ch := make(chan ChangeEvent, 64)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (s *BoltStore) publish(event ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub <- event:
		default:
		}
	}
}

func docsPageKey(project model.ProjectCode, localPath string) []byte {
	return []byte(string(project) + "\x00" + localPath)
}

func (s *BoltStore) GetDocsPage(ctx context.Context, project model.ProjectCode, localPath string) (model.DocsPage, bool, error) {
	var page model.DocsPage
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(docsPageBucket).Get(docsPageKey(project, localPath))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &page)
	})
	if err != nil {
		return model.DocsPage{}, false, fmt.Errorf("syncstate: get docs page %s/%s: %w", project, localPath, err)
	}
	return page, found, nil
}

func (s *BoltStore) UpsertDocsPage(ctx context.Context, page model.DocsPage) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("syncstate: marshal docs page %s/%s: %w", page.Project, page.LocalPath, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(docsPageBucket).Put(docsPageKey(page.Project, page.LocalPath), data)
	})
	if err != nil {
		return fmt.Errorf("syncstate: upsert docs page %s/%s: %w", page.Project, page.LocalPath, err)
	}
	return nil
}

func (s *BoltStore) ListDocsPages(ctx context.Context, project model.ProjectCode) ([]model.DocsPage, error) {
	prefix := []byte(string(project) + "\x00")
	var out []model.DocsPage
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(docsPageBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var page model.DocsPage
			if err := json.Unmarshal(v, &page); err != nil {
				return err
			}
			out = append(out, page)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("syncstate: list docs pages %s: %w", project, err)
	}
	return out, nil
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

// SetLastExport records the last full-book export time for project, a
// project-wide bookkeeping value distinct from any single DocsPage row's
// own LastExportAt field.
func (s *BoltStore) SetLastExport(ctx context.Context, project model.ProjectCode, t time.Time) error {
	data, err := t.MarshalBinary()
	if err != nil {
		return fmt.Errorf("syncstate: marshal last export time for %s: %w", project, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(lastExportBucket).Put([]byte(project), data)
	})
	if err != nil {
		return fmt.Errorf("syncstate: set last export %s: %w", project, err)
	}
	return nil
}
