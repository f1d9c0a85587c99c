package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tj/assert"
)

func newRedisStore(t *testing.T) (*RedisPresenceStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisPresenceStore(client), mr
}

func TestRedisPresenceStoreOnlineOffline(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, store.SetOnline(ctx, "alice", at))

	rec, err := store.Get(ctx, "alice")
	assert.NoError(t, err)
	assert.True(t, rec.IsOnline)
	assert.Equal(t, at.UnixMilli(), rec.LastActiveAt.UnixMilli())

	online, err := store.OnlineUsers(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(online))
	assert.Equal(t, "alice", online[0].UserID)

	later := at.Add(time.Minute)
	assert.NoError(t, store.SetOffline(ctx, "alice", later))

	rec, err = store.Get(ctx, "alice")
	assert.NoError(t, err)
	assert.False(t, rec.IsOnline)
	assert.Equal(t, later.UnixMilli(), rec.LastActiveAt.UnixMilli())

	online, err = store.OnlineUsers(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(online))
}

func TestRedisPresenceStoreGetUnknownUser(t *testing.T) {
	store, _ := newRedisStore(t)

	rec, err := store.Get(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.Equal(t, "nobody", rec.UserID)
	assert.False(t, rec.IsOnline)
	assert.True(t, rec.LastActiveAt.IsZero())
}

func TestRedisPresenceStoreExpireInactive(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, store.SetOnline(ctx, "stale", now.Add(-10*time.Minute)))
	assert.NoError(t, store.SetOnline(ctx, "connected", now.Add(-10*time.Minute)))
	assert.NoError(t, store.SetOnline(ctx, "fresh", now.Add(-30*time.Second)))

	expired, err := store.ExpireInactive(ctx, now.Add(-2*time.Minute), []string{"connected"})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(expired))
	assert.Equal(t, "stale", expired[0].UserID)
	assert.False(t, expired[0].IsOnline)

	rec, err := store.Get(ctx, "stale")
	assert.NoError(t, err)
	assert.False(t, rec.IsOnline)

	online, err := store.OnlineUsers(ctx)
	assert.NoError(t, err)
	ids := make([]string, 0, len(online))
	for _, r := range online {
		ids = append(ids, r.UserID)
	}
	assert.ElementsMatch(t, []string{"connected", "fresh"}, ids)
}

func TestRedisPresenceStoreExpireSkipsRefreshed(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, store.SetOnline(ctx, "alice", now.Add(-5*time.Minute)))
	assert.NoError(t, store.SetOnline(ctx, "alice", now))

	expired, err := store.ExpireInactive(ctx, now.Add(-2*time.Minute), nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(expired))

	rec, err := store.Get(ctx, "alice")
	assert.NoError(t, err)
	assert.True(t, rec.IsOnline)
}

func TestRedisPresenceStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	mr.Close()

	assert.Error(t, store.SetOnline(ctx, "alice", time.Now()))
	_, err := store.OnlineUsers(ctx)
	assert.Error(t, err)
}
