package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/engine"
	"vibesync.dev/syncorch/ingest/dedup"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/runtime"
)

type memDedup struct {
	seen map[string]bool
}

func (d *memDedup) SeenOrMark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func newTestHandler(dispatched *[]engine.Input) *Handler {
	runner := runtime.NewRunner(nil)
	syncFn := func(ctx context.Context, input any) (any, error) {
		*dispatched = append(*dispatched, input.(engine.Input))
		return nil, nil
	}
	return &Handler{
		Dedup:   &memDedup{},
		RepoLog: adapters.NullRepoLog{},
		Runner:  runner,
		SyncFn:  syncFn,
	}
}

func TestProcessBatch_FiltersNonIssueChanges(t *testing.T) {
	var dispatched []engine.Input
	h := newTestHandler(&dispatched)

	err := h.ProcessBatch(context.Background(), []Change{
		{Class: "comment", Identifier: "ACME-1", ID: "c1"},
		{Class: "issue", Identifier: "ACME-2", ID: "i1", ModifiedOn: 100},
	})
	require.NoError(t, err)
	require.Len(t, dispatched, 1)
	assert.Equal(t, model.ProjectCode("ACME"), dispatched[0].Project)
}

func TestProcessBatch_DeduplicatesKeepingNewest(t *testing.T) {
	var dispatched []engine.Input
	h := newTestHandler(&dispatched)

	err := h.ProcessBatch(context.Background(), []Change{
		{Class: "issue", Identifier: "ACME-2", ID: "i1", Title: "stale", ModifiedOn: 100},
		{Class: "issue", Identifier: "ACME-2", ID: "i1", Title: "fresh", ModifiedOn: 200},
	})
	require.NoError(t, err)
	require.Len(t, dispatched, 1, "duplicate (identifier,id) pair must collapse to one dispatch")
	assert.Equal(t, "fresh", dispatched[0].Item.Title)
}

func TestProcessBatch_SuppressesAlreadySeenAcrossCalls(t *testing.T) {
	var dispatched []engine.Input
	h := newTestHandler(&dispatched)

	change := Change{Class: "issue", Identifier: "ACME-2", ID: "i1", ModifiedOn: 100}
	require.NoError(t, h.ProcessBatch(context.Background(), []Change{change}))
	require.NoError(t, h.ProcessBatch(context.Background(), []Change{change}))

	assert.Len(t, dispatched, 1, "redelivery of an already-seen change must not re-dispatch")
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`[{"class":"issue"}]`)
	secret := "topsecret"

	good := computeSignature(secret, body)
	assert.True(t, verifySignature(secret, body, good))
	assert.False(t, verifySignature(secret, body, "deadbeef"))
	assert.False(t, verifySignature("wrong-secret", body, good))
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newMiniredisCache(t *testing.T) *dedup.RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return dedup.NewRedisCache(client, "test:webhook:")
}

func TestDedupCache_Integration(t *testing.T) {
	// Confirms ProcessBatch composes correctly with the real redis-backed
	// cache, not just the in-memory test double.
	cache := newMiniredisCache(t)
	var dispatched []engine.Input
	runner := runtime.NewRunner(nil)
	h := &Handler{
		Dedup:   cache,
		RepoLog: adapters.NullRepoLog{},
		Runner:  runner,
		SyncFn: func(ctx context.Context, input any) (any, error) {
			dispatched = append(dispatched, input.(engine.Input))
			return nil, nil
		},
	}

	change := Change{Class: "issue", Identifier: "ACME-9", ID: "i9", ModifiedOn: 1}
	require.NoError(t, h.ProcessBatch(context.Background(), []Change{change}))
	require.NoError(t, h.ProcessBatch(context.Background(), []Change{change}))
	assert.Len(t, dispatched, 1)
}

var _ dedup.Cache = (*memDedup)(nil)
