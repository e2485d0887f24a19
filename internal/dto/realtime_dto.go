package dto

import (
	"encoding/json"
	"time"
)

// TypingRequest names the destination of a typing signal.
type TypingRequest struct {
	To      string `json:"to" validate:"omitempty,max=64"`
	GroupID string `json:"group_id" validate:"omitempty,max=64"`
}

// TypingSignal is relayed to the destination of a typing signal.
type TypingSignal struct {
	From    string `json:"from"`
	GroupID string `json:"group_id,omitempty"`
}

// PresenceResponse reports a user's presence.
type PresenceResponse struct {
	UserID     string     `json:"user_id"`
	IsOnline   bool       `json:"is_online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// Ack answers a client frame carrying a ref.
type Ack struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// CallInitiateRequest starts a 1:1 call. Signal is an opaque offer.
type CallInitiateRequest struct {
	To     string          `json:"to" validate:"required,max=64"`
	Media  string          `json:"media" validate:"required,oneof=audio video"`
	Signal json.RawMessage `json:"signal" validate:"required"`
}

// CallAnswerRequest accepts an incoming call from To. Signal is an opaque answer.
type CallAnswerRequest struct {
	To     string          `json:"to" validate:"required,max=64"`
	Signal json.RawMessage `json:"signal" validate:"required"`
}

// CallICERequest relays an opaque candidate to the other party.
type CallICERequest struct {
	To     string          `json:"to" validate:"required,max=64"`
	Signal json.RawMessage `json:"signal" validate:"required"`
}

// CallTerminateRequest ends the call with To.
type CallTerminateRequest struct {
	To string `json:"to" validate:"required,max=64"`
}

// CallSignal is pushed to the other party of a 1:1 call.
type CallSignal struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Media  string          `json:"media,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

// CallEnded is pushed to the other party on terminate.
type CallEnded struct {
	From   string `json:"from"`
	Status string `json:"status,omitempty"`
}

// CallUnreachable is pushed back to an initiator whose callee is offline.
type CallUnreachable struct {
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// GroupCallRequest starts, joins or leaves a group call.
type GroupCallRequest struct {
	GroupID string `json:"group_id" validate:"required,max=64"`
	Media   string `json:"media" validate:"omitempty,oneof=audio video"`
}

// GroupCallSignalRequest relays an opaque pairwise signal inside a group call.
type GroupCallSignalRequest struct {
	GroupID string          `json:"group_id" validate:"required,max=64"`
	To      string          `json:"to" validate:"required,max=64"`
	Signal  json.RawMessage `json:"signal" validate:"required"`
}

// GroupCallEvent is broadcast on group call start, join and leave.
type GroupCallEvent struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Media   string `json:"media,omitempty"`
}

// GroupCallSignal is a pairwise signal pushed to one group call participant.
type GroupCallSignal struct {
	GroupID string          `json:"group_id"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Signal  json.RawMessage `json:"signal"`
}
