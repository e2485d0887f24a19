package service

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-realtime-api/internal/observability"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
)

// Notification is a side effect computed while performing a mutation and applied
// once the mutation has been persisted. Exactly one of UserID, Room or All selects
// the audience.
type Notification struct {
	UserID string
	Room   string
	All    bool
	Except []string
	Event  realtime.Event
}

// ToUser addresses a single user.
func ToUser(userID string, event realtime.Event) Notification {
	return Notification{UserID: userID, Event: event}
}

// ToRoom addresses the members of room except the listed users.
func ToRoom(room string, event realtime.Event, except ...string) Notification {
	return Notification{Room: room, Event: event, Except: except}
}

// ToEveryone addresses every connected user except the listed ones.
func ToEveryone(event realtime.Event, except ...string) Notification {
	return Notification{All: true, Event: event, Except: except}
}

// DispatchReport counts what happened to direct pushes.
type DispatchReport struct {
	Pushed      int
	Unreachable int
	Failed      int
	Broadcast   int
}

// Dispatcher applies notifications through the hub. Failures never propagate to the
// actor whose mutation produced them; they are logged and counted.
type Dispatcher struct {
	hub    *realtime.Hub
	logger zerolog.Logger
}

// NewDispatcher constructs a dispatcher over hub.
func NewDispatcher(hub *realtime.Hub, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		logger: logger.With().Str("component", "realtime_dispatch").Logger(),
	}
}

// Hub exposes the underlying hub.
func (d *Dispatcher) Hub() *realtime.Hub {
	return d.hub
}

// Apply delivers notifications in order.
func (d *Dispatcher) Apply(notes ...Notification) DispatchReport {
	var report DispatchReport
	for _, note := range notes {
		switch {
		case note.UserID != "":
			err := d.hub.Push(note.UserID, note.Event)
			switch {
			case err == nil:
				report.Pushed++
			case errors.Is(err, realtime.ErrUnreachable):
				report.Unreachable++
			default:
				report.Failed++
				observability.PushFailures().WithLabelValues(note.Event.Kind.String()).Inc()
				d.logger.Warn().Err(err).Str("user_id", note.UserID).Str("kind", note.Event.Kind.String()).Msg("push to live connection failed")
			}
		case note.All:
			report.Broadcast += d.hub.BroadcastAll(note.Event, note.Except...)
		case note.Room != "":
			report.Broadcast += d.hub.Broadcast(note.Room, note.Event, note.Except...)
		}
	}
	return report
}
