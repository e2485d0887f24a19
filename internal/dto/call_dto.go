package dto

import (
	"time"

	"github.com/noah-isme/gema-realtime-api/internal/models"
)

// CallLogRequest writes a call record. Exactly one of CalleeID and GroupID is set.
type CallLogRequest struct {
	CalleeID        string    `json:"callee_id" validate:"omitempty,max=64"`
	GroupID         string    `json:"group_id" validate:"omitempty,max=64"`
	Media           string    `json:"media" validate:"required,oneof=audio video"`
	Status          string    `json:"status" validate:"required,oneof=answered missed rejected"`
	DurationSeconds int       `json:"duration_seconds" validate:"min=0"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
}

// CallRecordResponse is the serialized representation of a call record.
type CallRecordResponse struct {
	ID              uint      `json:"id"`
	CallerID        string    `json:"caller_id"`
	CalleeID        string    `json:"callee_id,omitempty"`
	GroupID         string    `json:"group_id,omitempty"`
	Media           string    `json:"media"`
	Scope           string    `json:"scope"`
	Status          string    `json:"status"`
	DurationSeconds int       `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// CallLogResult reports whether the record was new or matched a recent duplicate.
type CallLogResult struct {
	Record    CallRecordResponse `json:"record"`
	Duplicate bool               `json:"duplicate"`
}

// CallHistoryQuery pages a user's call history.
type CallHistoryQuery struct {
	Limit  int `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

// NewCallRecordResponse converts a model into a DTO.
func NewCallRecordResponse(record models.CallRecord) CallRecordResponse {
	return CallRecordResponse{
		ID:              record.ID,
		CallerID:        record.CallerID,
		CalleeID:        record.CalleeID,
		GroupID:         record.GroupID,
		Media:           string(record.Media),
		Scope:           string(record.Scope),
		Status:          string(record.Status),
		DurationSeconds: record.DurationSeconds,
		StartedAt:       record.StartedAt,
		EndedAt:         record.EndedAt,
		CreatedAt:       record.CreatedAt,
	}
}

// NewCallRecordResponseSlice converts a slice of models into DTOs.
func NewCallRecordResponseSlice(records []models.CallRecord) []CallRecordResponse {
	out := make([]CallRecordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, NewCallRecordResponse(record))
	}
	return out
}
