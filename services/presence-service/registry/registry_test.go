package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/tj/assert"

	"chorus/services/presence-service/registry"
	"chorus/services/presence-service/registry/registrytest"
)

func TestRegisterReplacesHandle(t *testing.T) {
	r := registry.New()
	first := registrytest.NewConn("c1", "alice")
	second := registrytest.NewConn("c2", "alice")

	prev, replaced := r.Register("alice", first)
	assert.False(t, replaced)
	assert.Nil(t, prev)

	prev, replaced = r.Register("alice", second)
	assert.True(t, replaced)
	assert.Equal(t, first, prev)

	got, ok := r.Lookup("alice")
	assert.True(t, ok)
	assert.Equal(t, second, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterSameHandleIsIdempotent(t *testing.T) {
	r := registry.New()
	c := registrytest.NewConn("c1", "alice")

	r.Register("alice", c)
	prev, replaced := r.Register("alice", c)
	assert.False(t, replaced)
	assert.Nil(t, prev)
}

func TestUnregisterIgnoresStaleHandle(t *testing.T) {
	r := registry.New()
	old := registrytest.NewConn("c1", "alice")
	live := registrytest.NewConn("c2", "alice")

	r.Register("alice", old)
	r.Register("alice", live)

	assert.False(t, r.Unregister("alice", old))
	got, ok := r.Lookup("alice")
	assert.True(t, ok)
	assert.Equal(t, live, got)

	assert.True(t, r.Unregister("alice", live))
	_, ok = r.Lookup("alice")
	assert.False(t, ok)

	assert.False(t, r.Unregister("alice", live))
}

func TestSnapshotIsSorted(t *testing.T) {
	r := registry.New()
	for _, id := range []string{"carol", "alice", "bob"} {
		r.Register(id, registrytest.NewConn("c-"+id, id))
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Snapshot())
	assert.Equal(t, 3, len(r.Conns()))

	_, ok := r.JoinedAt("bob")
	assert.True(t, ok)
}

func TestLastJoinWins(t *testing.T) {
	r := registry.New()
	var last *registrytest.Conn
	for i := 0; i < 10; i++ {
		last = registrytest.NewConn(fmt.Sprintf("c%d", i), "alice")
		r.Register("alice", last)
	}
	got, _ := r.Lookup("alice")
	assert.Equal(t, last, got)
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := registry.New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%5)
			c := registrytest.NewConn(fmt.Sprintf("c%d", i), user)
			r.Register(user, c)
			_ = r.Snapshot()
			if i%2 == 0 {
				r.Unregister(user, c)
			}
		}(i)
	}
	wg.Wait()

	for _, id := range r.Snapshot() {
		c, ok := r.Lookup(id)
		assert.True(t, ok)
		assert.Equal(t, id, c.UserID())
	}
}
