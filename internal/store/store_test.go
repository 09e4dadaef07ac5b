package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aaronromeo.com/inboxsweep/internal/queue"
	"aaronromeo.com/inboxsweep/pkg/models/action"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ queue.Store = (*Memory)(nil)
	_ queue.Store = (*SQLite)(nil)
	_ queue.Store = (*Redis)(nil)
	_ queue.Store = (*Postgres)(nil)
)

func newIntent(id string, typ action.Type, target action.Target) action.Intent {
	return action.Intent{
		ID:        id,
		Type:      typ,
		Target:    target,
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 123000000, time.UTC),
	}
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) queue.Store) {
	ctx := context.Background()

	t.Run("keeps insertion order", func(t *testing.T) {
		s := newStore(t)
		ids := []string{"c", "a", "b", "e", "d"}
		for _, id := range ids {
			require.NoError(t, s.Add(ctx, newIntent(id, action.Trash, action.Target{EmailIDs: []string{"m-" + id}})))
		}

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		got := make([]string, 0, len(all))
		for _, intent := range all {
			got = append(got, intent.ID)
		}
		assert.Equal(t, ids, got)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("round trips fields", func(t *testing.T) {
		s := newStore(t)
		in := newIntent("x", action.Nuke, action.Target{Domain: "example.com"})
		in.RetryCount = 2
		in.LastError = "rate limited by provider"
		require.NoError(t, s.Add(ctx, in))

		out, ok, err := s.Get(ctx, "x")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, in.Type, out.Type)
		assert.Equal(t, in.Target, out.Target)
		assert.Equal(t, in.RetryCount, out.RetryCount)
		assert.Equal(t, in.LastError, out.LastError)
		assert.True(t, in.CreatedAt.Equal(out.CreatedAt), "created_at %v != %v", in.CreatedAt, out.CreatedAt)
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		s := newStore(t)
		intent := newIntent("dup", action.Keep, action.Target{EmailIDs: []string{"m1"}})
		require.NoError(t, s.Add(ctx, intent))
		assert.Error(t, s.Add(ctx, intent))
	})

	t.Run("put updates existing and ignores unknown", func(t *testing.T) {
		s := newStore(t)
		intent := newIntent("p", action.Block, action.Target{Sender: "news@example.com"})
		require.NoError(t, s.Add(ctx, intent))

		intent.RetryCount = 3
		require.NoError(t, s.Put(ctx, intent))
		require.NoError(t, s.Put(ctx, newIntent("ghost", action.Trash, action.Target{EmailIDs: []string{"m"}})))

		got, ok, err := s.Get(ctx, "p")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 3, got.RetryCount)

		_, ok, err = s.Get(ctx, "ghost")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Add(ctx, newIntent("a", action.Trash, action.Target{EmailIDs: []string{"m"}})))
		require.NoError(t, s.Add(ctx, newIntent("b", action.Trash, action.Target{EmailIDs: []string{"n"}})))

		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "missing"))

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "b", all[0].ID)
	})

	t.Run("init is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Add(ctx, newIntent("keep", action.Trash, action.Target{EmailIDs: []string{"m"}})))
		require.NoError(t, s.Init(ctx))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) queue.Store {
		s := NewMemory()
		require.NoError(t, s.Init(context.Background()))
		return s
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) queue.Store {
		return testSQLiteStore(t, filepath.Join(t.TempDir(), "state", "queue.db"))
	})
}

func testSQLiteStore(t *testing.T, path string) *SQLite {
	t.Helper()
	s := NewSQLite(path)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	first := NewSQLite(path)
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.Add(ctx, newIntent("a", action.Trash, action.Target{EmailIDs: []string{"m1"}})))
	require.NoError(t, first.Add(ctx, newIntent("b", action.Block, action.Target{Sender: "x@example.com"})))
	require.NoError(t, first.Close())

	second := testSQLiteStore(t, path)
	all, err := second.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestSQLiteUsedBeforeInit(t *testing.T) {
	s := NewSQLite(filepath.Join(t.TempDir(), "queue.db"))
	_, err := s.Count(context.Background())
	assert.Error(t, err)
}

func TestSQLiteInitFailsOnUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewSQLite(filepath.Join(blocker, "queue.db"))
	assert.Error(t, s.Init(context.Background()))
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) queue.Store {
		mr := miniredis.RunT(t)
		s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
		require.NoError(t, s.Init(context.Background()))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisFromURL("redis://"+mr.Addr()+"/0", "")
	require.NoError(t, err)
	mr.Close()

	assert.Error(t, s.Init(context.Background()))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("INBOXSWEEP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INBOXSWEEP_TEST_POSTGRES_DSN not set")
	}

	var mu sync.Mutex
	runStoreContract(t, func(t *testing.T) queue.Store {
		mu.Lock()
		defer mu.Unlock()
		s := NewPostgres(dsn)
		require.NoError(t, s.Init(context.Background()))
		t.Cleanup(func() {
			pool, err := s.conn()
			if err == nil {
				_, _ = pool.Exec(context.Background(), "DELETE FROM inboxsweep_intents")
			}
			_ = s.Close()
		})
		_, err := s.pool.Exec(context.Background(), "DELETE FROM inboxsweep_intents")
		require.NoError(t, err)
		return s
	})
}
