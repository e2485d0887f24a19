package realtime

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	// ErrUnreachable indicates the destination has no live connection.
	ErrUnreachable = errors.New("destination unreachable")
	// ErrSendFailed indicates a resolved connection rejected the event.
	ErrSendFailed = errors.New("transport send failed")
)

// Broadcast describes a fan-out to a room, or to everyone when Room is empty.
type Broadcast struct {
	Room   string   `json:"room,omitempty"`
	Event  Event    `json:"event"`
	Except []string `json:"except,omitempty"`
}

// Relay forwards broadcasts to other nodes.
type Relay interface {
	Relay(b Broadcast)
}

// Hub resolves destinations through the registry and room index and pushes events
// to local connections. Direct pushes never leave the node; broadcasts are also
// handed to the relay when one is attached.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	relay    Relay
	log      zerolog.Logger
}

// NewHub constructs a hub over the given registry and room index.
func NewHub(registry *Registry, rooms *Rooms, logger zerolog.Logger) *Hub {
	return &Hub{
		registry: registry,
		rooms:    rooms,
		log:      logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// SetRelay attaches a cross-node relay.
func (h *Hub) SetRelay(relay Relay) {
	h.relay = relay
}

// Registry exposes the session registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Rooms exposes the room index.
func (h *Hub) Rooms() *Rooms {
	return h.rooms
}

// Reachable reports whether userID has a live connection.
func (h *Hub) Reachable(userID string) bool {
	_, ok := h.registry.Resolve(userID)
	return ok
}

// Push delivers event to userID's live connection.
func (h *Hub) Push(userID string, event Event) error {
	conn, ok := h.registry.Resolve(userID)
	if !ok {
		return ErrUnreachable
	}
	if err := conn.Send(event); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Broadcast fans event out to room members except the listed users, and relays it.
// It returns the number of local deliveries.
func (h *Hub) Broadcast(room string, event Event, except ...string) int {
	b := Broadcast{Room: room, Event: event, Except: except}
	delivered := h.Deliver(b)
	if h.relay != nil {
		h.relay.Relay(b)
	}
	return delivered
}

// BroadcastAll fans event out to every connected user except the listed ones.
func (h *Hub) BroadcastAll(event Event, except ...string) int {
	return h.Broadcast("", event, except...)
}

// Deliver performs the local part of a broadcast. Send failures are logged and skipped.
func (h *Hub) Deliver(b Broadcast) int {
	var targets []string
	if b.Room == "" {
		targets = h.registry.Online()
	} else {
		targets = h.rooms.Members(b.Room)
	}

	skip := make(map[string]struct{}, len(b.Except))
	for _, id := range b.Except {
		skip[id] = struct{}{}
	}

	delivered := 0
	for _, userID := range targets {
		if _, excluded := skip[userID]; excluded {
			continue
		}
		if err := h.Push(userID, b.Event); err != nil {
			h.log.Warn().Err(err).Str("room", b.Room).Str("user_id", userID).Str("kind", b.Event.Kind.String()).Msg("dropping broadcast for client")
			continue
		}
		delivered++
	}
	return delivered
}
