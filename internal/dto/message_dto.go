package dto

import (
	"time"

	"github.com/noah-isme/gema-realtime-api/internal/models"
)

// SendMessageRequest is the payload to post a message to a user or a group.
// Exactly one of ReceiverID and GroupID must be set.
type SendMessageRequest struct {
	ReceiverID string         `json:"receiver_id" validate:"omitempty,max=64"`
	GroupID    string         `json:"group_id" validate:"omitempty,max=64"`
	Content    string         `json:"content" validate:"required"`
	Type       string         `json:"type" validate:"omitempty,oneof=text image file audio sticker"`
	ReplyTo    *uint          `json:"reply_to,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ClientRef  string         `json:"client_ref,omitempty" validate:"omitempty,max=128"`
}

// ForwardMessageRequest names the new destination of a forwarded message.
type ForwardMessageRequest struct {
	ReceiverID string `json:"receiver_id" validate:"omitempty,max=64"`
	GroupID    string `json:"group_id" validate:"omitempty,max=64"`
}

// EditMessageRequest replaces a message's content.
type EditMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// DeleteMessagesRequest removes several messages at once.
type DeleteMessagesRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

// ReactionRequest toggles an emoji reaction.
type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

// MarkReadRequest marks every message from PartnerID as read.
type MarkReadRequest struct {
	PartnerID string `json:"partner_id" validate:"required,max=64"`
}

// GroupReadRequest marks every group message as read by the caller.
type GroupReadRequest struct {
	GroupID string `json:"group_id" validate:"required,max=64"`
}

// RoomRequest names a conversation to subscribe to or leave.
type RoomRequest struct {
	PartnerID string `json:"partner_id" validate:"omitempty,max=64"`
	GroupID   string `json:"group_id" validate:"omitempty,max=64"`
}

// MessageHistoryQuery pages a conversation backwards from Before.
type MessageHistoryQuery struct {
	PartnerID string     `query:"partner_id" validate:"omitempty,max=64"`
	GroupID   string     `query:"group_id" validate:"omitempty,max=64"`
	Before    *time.Time `query:"before"`
	Limit     int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// UserSummary carries display fields attached to outbound messages.
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// NewUserSummary converts a user model.
func NewUserSummary(user models.User) UserSummary {
	return UserSummary{ID: user.ID, DisplayName: user.DisplayName, AvatarURL: user.AvatarURL}
}

// ReactionResponse is one reaction on a message.
type ReactionResponse struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// MessageResponse is the serialized representation of a message.
type MessageResponse struct {
	ID            uint               `json:"id"`
	SenderID      string             `json:"sender_id"`
	ReceiverID    string             `json:"receiver_id,omitempty"`
	GroupID       string             `json:"group_id,omitempty"`
	RoomID        string             `json:"room_id"`
	Content       string             `json:"content"`
	Type          string             `json:"type"`
	Status        string             `json:"status,omitempty"`
	IsPinned      bool               `json:"is_pinned"`
	IsEdited      bool               `json:"is_edited"`
	ForwardedFrom *uint              `json:"forwarded_from,omitempty"`
	ReplyTo       *uint              `json:"reply_to,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
	Reactions     []ReactionResponse `json:"reactions"`
	ReadBy        []string           `json:"read_by,omitempty"`
	DeliveredAt   *time.Time         `json:"delivered_at,omitempty"`
	ReadAt        *time.Time         `json:"read_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Sender        *UserSummary       `json:"sender,omitempty"`
	ClientRef     string             `json:"client_ref,omitempty"`
}

// NewMessageResponse converts a model into a DTO. Group messages carry ReadBy
// instead of a scalar status.
func NewMessageResponse(message models.Message) MessageResponse {
	response := MessageResponse{
		ID:            message.ID,
		SenderID:      message.SenderID,
		ReceiverID:    message.ReceiverID,
		GroupID:       message.GroupID,
		RoomID:        message.RoomID,
		Content:       message.Content,
		Type:          string(message.Type),
		IsPinned:      message.IsPinned,
		IsEdited:      message.IsEdited,
		ForwardedFrom: message.ForwardedFrom,
		ReplyTo:       message.ReplyTo,
		DeliveredAt:   message.DeliveredAt,
		ReadAt:        message.ReadAt,
		CreatedAt:     message.CreatedAt,
		UpdatedAt:     message.UpdatedAt,
		Reactions:     make([]ReactionResponse, 0, len(message.Reactions)),
	}
	if !message.IsGroup() {
		response.Status = string(message.Status)
	}
	if len(message.Metadata) > 0 {
		response.Metadata = map[string]any(message.Metadata)
	}
	for _, reaction := range message.Reactions {
		response.Reactions = append(response.Reactions, ReactionResponse{UserID: reaction.UserID, Emoji: reaction.Emoji})
	}
	if message.IsGroup() {
		response.ReadBy = make([]string, 0, len(message.Reads))
		for _, read := range message.Reads {
			response.ReadBy = append(response.ReadBy, read.UserID)
		}
	}
	return response
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// StatusReceipt tells a sender that messages changed delivery state. PeerID is the
// user who received or read them.
type StatusReceipt struct {
	PeerID     string    `json:"peer_id"`
	MessageIDs []uint    `json:"message_ids"`
	Status     string    `json:"status"`
	At         time.Time `json:"at"`
}

// GroupReadReceipt tells group members that ReaderID has read messages.
type GroupReadReceipt struct {
	GroupID    string    `json:"group_id"`
	ReaderID   string    `json:"reader_id"`
	MessageIDs []uint    `json:"message_ids"`
	At         time.Time `json:"at"`
}

// MessagesDeleted announces removed messages in a room.
type MessagesDeleted struct {
	RoomID     string `json:"room_id"`
	MessageIDs []uint `json:"message_ids"`
}

// PinChange announces a pin toggle. Unpinned lists messages that lost their pin as a side effect.
type PinChange struct {
	RoomID    string `json:"room_id"`
	MessageID uint   `json:"message_id"`
	IsPinned  bool   `json:"is_pinned"`
	Unpinned  []uint `json:"unpinned,omitempty"`
}

// ReactionChange announces a reaction toggle.
type ReactionChange struct {
	RoomID    string `json:"room_id"`
	MessageID uint   `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji,omitempty"`
	Removed   bool   `json:"removed"`
}

// MarkResult summarises a status transition batch.
type MarkResult struct {
	Updated    int    `json:"updated"`
	MessageIDs []uint `json:"message_ids"`
}

// DeleteResult summarises a deletion.
type DeleteResult struct {
	Deleted    int    `json:"deleted"`
	MessageIDs []uint `json:"message_ids"`
}
