package models

import "time"

// User is the durable profile the realtime core reads display fields from and
// persists presence into.
type User struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string     `gorm:"size:128" json:"display_name"`
	AvatarURL   string     `gorm:"size:512" json:"avatar_url"`
	IsOnline    bool       `gorm:"not null;default:false" json:"is_online"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Connection status values.
const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
)

// Connection is a relationship request between two users. Only accepted
// connections authorise direct messaging and calls.
type Connection struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RequesterID string    `gorm:"size:64;index" json:"requester_id"`
	AddresseeID string    `gorm:"size:64;index" json:"addressee_id"`
	Status      string    `gorm:"size:16;default:pending" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupMember links a user to a group with a role.
type GroupMember struct {
	GroupID  string    `gorm:"primaryKey;size:64" json:"group_id"`
	UserID   string    `gorm:"primaryKey;size:64;index" json:"user_id"`
	Role     string    `gorm:"size:16;default:member" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
