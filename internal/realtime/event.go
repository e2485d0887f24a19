package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies an event flowing over the multiplexed connection. The set is
// closed: frames naming any other kind are rejected before dispatch.
type Kind uint8

const (
	KindUnknown Kind = iota

	// client -> server
	KindMessageSend
	KindRoomJoin
	KindRoomLeave
	KindPing
	KindCallInitiate
	KindCallAnswer
	KindCallTerminate
	KindGroupCallStart
	KindGroupCallJoin
	KindGroupCallLeave

	// both directions
	KindMessageRead
	KindMessageGroupRead
	KindTypingStart
	KindTypingStop
	KindCallICE
	KindGroupCallSignal

	// server -> client
	KindAck
	KindPong
	KindMessageNew
	KindMessageDelivered
	KindMessageUpdated
	KindMessageDeleted
	KindMessagePinned
	KindMessageReaction
	KindPresenceOnline
	KindPresenceOffline
	KindCallIncoming
	KindCallAnswered
	KindCallEnded
	KindCallUnreachable
	KindGroupCallIncoming
	KindGroupCallJoined
	KindGroupCallLeft

	kindCount
)

var kindNames = [kindCount]string{
	KindUnknown:           "",
	KindMessageSend:       "message.send",
	KindRoomJoin:          "room.join",
	KindRoomLeave:         "room.leave",
	KindPing:              "ping",
	KindCallInitiate:      "call.initiate",
	KindCallAnswer:        "call.answer",
	KindCallTerminate:     "call.terminate",
	KindGroupCallStart:    "group_call.start",
	KindGroupCallJoin:     "group_call.join",
	KindGroupCallLeave:    "group_call.leave",
	KindMessageRead:       "message.read",
	KindMessageGroupRead:  "message.group_read",
	KindTypingStart:       "typing.start",
	KindTypingStop:        "typing.stop",
	KindCallICE:           "call.ice",
	KindGroupCallSignal:   "group_call.signal",
	KindAck:               "ack",
	KindPong:              "pong",
	KindMessageNew:        "message.new",
	KindMessageDelivered:  "message.delivered",
	KindMessageUpdated:    "message.updated",
	KindMessageDeleted:    "message.deleted",
	KindMessagePinned:     "message.pinned",
	KindMessageReaction:   "message.reaction",
	KindPresenceOnline:    "presence.online",
	KindPresenceOffline:   "presence.offline",
	KindCallIncoming:      "call.incoming",
	KindCallAnswered:      "call.answered",
	KindCallEnded:         "call.ended",
	KindCallUnreachable:   "call.unreachable",
	KindGroupCallIncoming: "group_call.incoming",
	KindGroupCallJoined:   "group_call.participant_joined",
	KindGroupCallLeft:     "group_call.participant_left",
}

var kindsByName = func() map[string]Kind {
	out := make(map[string]Kind, kindCount)
	for k := KindUnknown + 1; k < kindCount; k++ {
		out[kindNames[k]] = k
	}
	return out
}()

// ParseKind resolves a wire name.
func ParseKind(name string) (Kind, error) {
	if k, ok := kindsByName[name]; ok {
		return k, nil
	}
	return KindUnknown, fmt.Errorf("unknown event kind %q", name)
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return ""
}

// Inbound reports whether clients may send this kind.
func (k Kind) Inbound() bool {
	return k > KindUnknown && k < KindAck
}

// InboundKinds lists every kind a client may send.
func InboundKinds() []Kind {
	out := make([]Kind, 0, KindAck-1)
	for k := KindUnknown + 1; k < KindAck; k++ {
		out = append(out, k)
	}
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k == KindUnknown || k >= kindCount {
		return nil, fmt.Errorf("cannot encode event kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is a frame pushed to a client.
type Event struct {
	Kind Kind      `json:"kind"`
	Ref  string    `json:"ref,omitempty"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

// NewEvent stamps an outbound event.
func NewEvent(kind Kind, data any) Event {
	return Event{Kind: kind, Data: data, At: time.Now().UTC()}
}

// Frame is a decoded client frame. Data is kept raw for the kind-specific decoder.
type Frame struct {
	Kind Kind            `json:"kind"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the frame payload into target.
func (f Frame) Decode(target any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s: payload required", f.Kind)
	}
	if err := json.Unmarshal(f.Data, target); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", f.Kind, err)
	}
	return nil
}
