package models

import "time"

// CallMedia is the media kind negotiated for a call.
type CallMedia string

const (
	CallAudio CallMedia = "audio"
	CallVideo CallMedia = "video"
)

// CallScope distinguishes 1:1 calls from group calls.
type CallScope string

const (
	CallDirect CallScope = "direct"
	CallGroup  CallScope = "group"
)

// CallStatus is the final outcome written to a call record.
type CallStatus string

const (
	CallAnswered CallStatus = "answered"
	CallMissed   CallStatus = "missed"
	CallRejected CallStatus = "rejected"
)

// CallRecord is the durable history entry written once when a call attempt ends.
// ParticipantKey is the conversation room of the call, used for duplicate detection.
type CallRecord struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CallerID        string     `gorm:"size:64;index;not null" json:"caller_id"`
	CalleeID        string     `gorm:"size:64;index" json:"callee_id,omitempty"`
	GroupID         string     `gorm:"size:64;index" json:"group_id,omitempty"`
	ParticipantKey  string     `gorm:"size:160;index:idx_call_records_dedupe" json:"participant_key"`
	Media           CallMedia  `gorm:"size:16;not null" json:"media"`
	Scope           CallScope  `gorm:"size:16;not null" json:"scope"`
	Status          CallStatus `gorm:"size:16;not null" json:"status"`
	DurationSeconds int        `gorm:"not null;default:0" json:"duration_seconds"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         time.Time  `json:"ended_at"`
	CreatedAt       time.Time  `gorm:"index:idx_call_records_dedupe" json:"created_at"`
}

// All returns every model owned by the realtime core, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Connection{},
		&GroupMember{},
		&Message{},
		&MessageRead{},
		&MessageReaction{},
		&CallRecord{},
	}
}
