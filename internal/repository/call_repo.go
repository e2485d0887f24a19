package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-realtime-api/internal/models"
)

// CallRecordRepository persists call history.
type CallRecordRepository interface {
	Create(ctx context.Context, record *models.CallRecord) error
	FindByID(ctx context.Context, id uint) (models.CallRecord, error)
	FindRecent(ctx context.Context, participantKey, callerID string, since time.Time) (models.CallRecord, error)
	ListForUser(ctx context.Context, userID string, groupIDs []string, limit, offset int) ([]models.CallRecord, error)
	Delete(ctx context.Context, id uint) error
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}

type callRecordRepository struct {
	db *gorm.DB
}

// NewCallRecordRepository constructs a call record repository backed by GORM.
func NewCallRecordRepository(db *gorm.DB) CallRecordRepository {
	return &callRecordRepository{db: db}
}

func (r *callRecordRepository) Create(ctx context.Context, record *models.CallRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *callRecordRepository) FindByID(ctx context.Context, id uint) (models.CallRecord, error) {
	var record models.CallRecord
	if err := r.db.WithContext(ctx).First(&record, id).Error; err != nil {
		return models.CallRecord{}, err
	}
	return record, nil
}

func (r *callRecordRepository) FindRecent(ctx context.Context, participantKey, callerID string, since time.Time) (models.CallRecord, error) {
	var record models.CallRecord
	err := r.db.WithContext(ctx).
		Where("participant_key = ? AND caller_id = ? AND created_at >= ?", participantKey, callerID, since).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		return models.CallRecord{}, err
	}
	return record, nil
}

func (r *callRecordRepository) ListForUser(ctx context.Context, userID string, groupIDs []string, limit, offset int) ([]models.CallRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	visible := r.db.Where("caller_id = ? OR callee_id = ?", userID, userID)
	if len(groupIDs) > 0 {
		visible = visible.Or("group_id IN ?", groupIDs)
	}

	var records []models.CallRecord
	if err := r.db.WithContext(ctx).
		Where(visible).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *callRecordRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.CallRecord{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *callRecordRepository) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("caller_id = ? OR callee_id = ?", userID, userID).
		Delete(&models.CallRecord{})
	return result.RowsAffected, result.Error
}
