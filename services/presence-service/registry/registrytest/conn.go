// Package registrytest provides a recording registry.Conn for tests.
package registrytest

import (
	"encoding/json"
	"sync"

	"chorus/services/presence-service/models"
	"chorus/services/presence-service/registry"
)

// Conn records every frame sent to it.
type Conn struct {
	id     string
	userID string

	mu     sync.Mutex
	frames []models.Envelope
	closed bool
}

func NewConn(id, userID string) *Conn {
	return &Conn{id: id, userID: userID}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return registry.ErrConnectionClosed
	}
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

// Close makes further sends fail with registry.ErrConnectionClosed.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Frames returns a copy of everything received so far.
func (c *Conn) Frames() []models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Envelope, len(c.frames))
	copy(out, c.frames)
	return out
}

// OfType returns received frames with the given type.
func (c *Conn) OfType(eventType string) []models.Envelope {
	var out []models.Envelope
	for _, f := range c.Frames() {
		if f.Type == eventType {
			out = append(out, f)
		}
	}
	return out
}

// Last returns the last frame of the given type, if any.
func (c *Conn) Last(eventType string) (models.Envelope, bool) {
	frames := c.OfType(eventType)
	if len(frames) == 0 {
		return models.Envelope{}, false
	}
	return frames[len(frames)-1], true
}

func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}
