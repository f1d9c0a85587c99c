// Package registry tracks the single live connection of each reachable user.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("connection send buffer full")
	ErrNotConnected     = errors.New("user not connected")
)

// Conn is a live client connection. Send must not block.
type Conn interface {
	ID() string
	UserID() string
	Send(data []byte) error
}

type entry struct {
	conn     Conn
	joinedAt time.Time
}

// Registry maps userID to the most recently registered connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]entry
	now   func() time.Time
}

func New() *Registry {
	return &Registry{
		conns: make(map[string]entry),
		now:   time.Now,
	}
}

// Register stores conn for userID, replacing any existing handle. The replaced
// handle is returned for auditing only; it is not closed here.
func (r *Registry) Register(userID string, conn Conn) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.conns[userID]
	r.conns[userID] = entry{conn: conn, joinedAt: r.now()}
	if !ok || prev.conn == conn {
		return nil, false
	}
	return prev.conn, true
}

// Unregister removes userID only while conn is still the registered handle,
// so a late disconnect from a replaced connection cannot evict its successor.
func (r *Registry) Unregister(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.conns[userID]
	if !ok || cur.conn != conn {
		return false
	}
	delete(r.conns, userID)
	return true
}

func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// JoinedAt returns when the current connection for userID was registered.
func (r *Registry) JoinedAt(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[userID]
	return e.joinedAt, ok
}

// Snapshot returns the sorted set of registered user IDs.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Conns returns every registered connection.
func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.conn)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
