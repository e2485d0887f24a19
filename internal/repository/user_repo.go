package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-realtime-api/internal/models"
)

// UserRepository reads profile display fields and persists presence.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	SetPresence(ctx context.Context, userID string, online bool, lastSeen *time.Time) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) SetPresence(ctx context.Context, userID string, online bool, lastSeen *time.Time) error {
	user := models.User{ID: userID, IsOnline: online, LastSeenAt: lastSeen}
	columns := []string{"is_online", "updated_at"}
	if lastSeen != nil {
		columns = append(columns, "last_seen_at")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&user).Error
}
