package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-realtime-api/internal/models"
)

// RelationshipRepository answers whether two users hold an accepted connection.
type RelationshipRepository interface {
	AreConnected(ctx context.Context, a, b string) (bool, error)
}

// GroupRepository answers group membership questions.
type GroupRepository interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	Role(ctx context.Context, groupID, userID string) (string, error)
	GroupIDsForUser(ctx context.Context, userID string) ([]string, error)
}

type relationshipRepository struct {
	db *gorm.DB
}

// NewRelationshipRepository constructs a relationship lookup backed by GORM.
func NewRelationshipRepository(db *gorm.DB) RelationshipRepository {
	return &relationshipRepository{db: db}
}

func (r *relationshipRepository) AreConnected(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("status = ?", models.ConnectionAccepted).
		Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository constructs a group membership lookup backed by GORM.
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	role, err := r.Role(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

func (r *groupRepository) Role(ctx context.Context, groupID, userID string) (string, error) {
	var member models.GroupMember
	err := r.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if member.Role == "" {
		return "member", nil
	}
	return member.Role, nil
}

func (r *groupRepository) GroupIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&models.GroupMember{}).Where("user_id = ?", userID).Order("group_id ASC").Pluck("group_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
