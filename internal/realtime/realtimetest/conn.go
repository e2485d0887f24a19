// Package realtimetest provides in-memory connections for exercising the realtime core.
package realtimetest

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/gema-realtime-api/internal/realtime"
)

// ErrClosed is returned by Send after Close or when the conn is set to fail.
var ErrClosed = errors.New("connection closed")

// Conn records every event it receives.
type Conn struct {
	id string

	mu     sync.Mutex
	events []realtime.Event
	fail   bool
}

// NewConn constructs a recording connection with a random id.
func NewConn() *Conn {
	return &Conn{id: uuid.NewString()}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(event realtime.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrClosed
	}
	c.events = append(c.events, event)
	return nil
}

// Fail makes subsequent sends return ErrClosed.
func (c *Conn) Fail() {
	c.mu.Lock()
	c.fail = true
	c.mu.Unlock()
}

// Events returns a copy of the received events.
func (c *Conn) Events() []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Kinds returns received event kinds in order.
func (c *Conn) Kinds() []realtime.Kind {
	events := c.Events()
	out := make([]realtime.Kind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

// OfKind returns the received events of the given kind.
func (c *Conn) OfKind(kind realtime.Kind) []realtime.Event {
	var out []realtime.Event
	for _, e := range c.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets every received event.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
