package models

import (
	"time"

	"gorm.io/datatypes"
)

// MessageType enumerates the content kinds a message can carry.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageFile    MessageType = "file"
	MessageAudio   MessageType = "audio"
	MessageSticker MessageType = "sticker"
)

// MessageStatus is the delivery state of a 1:1 message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses so transitions can be checked for monotonicity.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Advances reports whether moving from s to next keeps the status walk non-decreasing
// and actually changes it.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.Rank() > s.Rank()
}

// Message is a persisted chat message. Exactly one of ReceiverID or GroupID is set.
// RoomID is the derived conversation room used for ordered range queries.
type Message struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	SenderID      string            `gorm:"size:64;index;not null" json:"sender_id"`
	ReceiverID    string            `gorm:"size:64;index:idx_messages_receiver_status" json:"receiver_id,omitempty"`
	GroupID       string            `gorm:"size:64;index" json:"group_id,omitempty"`
	RoomID        string            `gorm:"size:160;index:idx_messages_room_created;not null" json:"room_id"`
	Content       string            `gorm:"type:text" json:"content"`
	Type          MessageType       `gorm:"size:16;default:text" json:"type"`
	Status        MessageStatus     `gorm:"size:16;default:sent;index:idx_messages_receiver_status" json:"status"`
	IsPinned      bool              `gorm:"not null;default:false" json:"is_pinned"`
	IsEdited      bool              `gorm:"not null;default:false" json:"is_edited"`
	ForwardedFrom *uint             `json:"forwarded_from,omitempty"`
	ReplyTo       *uint             `json:"reply_to,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	DeliveredAt   *time.Time        `json:"delivered_at,omitempty"`
	ReadAt        *time.Time        `json:"read_at,omitempty"`
	CreatedAt     time.Time         `gorm:"index:idx_messages_room_created" json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`

	Reactions []MessageReaction `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"reactions,omitempty"`
	Reads     []MessageRead     `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"reads,omitempty"`
}

// IsGroup reports whether the message was posted into a group.
func (m Message) IsGroup() bool {
	return m.GroupID != ""
}

// HasParticipant reports whether userID is the sender or direct receiver.
func (m Message) HasParticipant(userID string) bool {
	return m.SenderID == userID || (m.ReceiverID != "" && m.ReceiverID == userID)
}

// Counterpart returns the other party of a 1:1 message from userID's point of view.
func (m Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// MessageRead records a group member having read a group message.
type MessageRead struct {
	MessageID uint      `gorm:"primaryKey" json:"message_id"`
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// MessageReaction is one user's emoji reaction on a message. A user holds at most one.
type MessageReaction struct {
	MessageID uint      `gorm:"primaryKey" json:"message_id"`
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	Emoji     string    `gorm:"size:32;not null" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
