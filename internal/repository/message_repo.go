package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-realtime-api/internal/models"
)

// MessageRepository persists messages and their delivery state.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (models.Message, error)
	FindByIDs(ctx context.Context, ids []uint) ([]models.Message, error)
	ListByRoom(ctx context.Context, roomID string, before time.Time, limit int) ([]models.Message, error)
	MarkDelivered(ctx context.Context, receiverID string, at time.Time) ([]models.Message, error)
	MarkRead(ctx context.Context, readerID, senderID string, at time.Time) ([]uint, error)
	MarkGroupRead(ctx context.Context, groupID, readerID string, at time.Time) ([]uint, error)
	UpdateContent(ctx context.Context, id uint, content string) (models.Message, error)
	SetPinned(ctx context.Context, message models.Message, pinned bool) ([]uint, error)
	ToggleReaction(ctx context.Context, messageID uint, userID, emoji string) (bool, error)
	DeleteByIDs(ctx context.Context, ids []uint) (int64, error)
	DeleteByGroup(ctx context.Context, groupID string) ([]uint, error)
	Pinned(ctx context.Context, roomID string) ([]models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(message).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Preload("Reactions").Preload("Reads").First(&message, id).Error
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) FindByIDs(ctx context.Context, ids []uint) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var messages []models.Message
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) ListByRoom(ctx context.Context, roomID string, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Preload("Reactions").Preload("Reads").Where("room_id = ?", roomID)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// pendingFor lists the statuses that can still advance to target.
func pendingFor(target models.MessageStatus) []models.MessageStatus {
	pending := make([]models.MessageStatus, 0, 2)
	for _, status := range []models.MessageStatus{models.StatusSent, models.StatusDelivered, models.StatusRead} {
		if status.Advances(target) {
			pending = append(pending, status)
		}
	}
	return pending
}

func (r *messageRepository) MarkDelivered(ctx context.Context, receiverID string, at time.Time) ([]models.Message, error) {
	var delivered []models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.Message{}).
			Where("receiver_id = ? AND status IN ?", receiverID, pendingFor(models.StatusDelivered)).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		// The status guard keeps a concurrent read transition from being undone.
		if err := tx.Model(&models.Message{}).
			Where("id IN ? AND status IN ?", ids, pendingFor(models.StatusDelivered)).
			Updates(map[string]interface{}{
				"status":       models.StatusDelivered,
				"delivered_at": at,
			}).Error; err != nil {
			return err
		}

		// Report only the rows this call moved; rows that lost the guard are skipped.
		return tx.Select("id", "sender_id").
			Where("id IN ? AND status = ? AND delivered_at = ?", ids, models.StatusDelivered, at).
			Order("id ASC").
			Find(&delivered).Error
	})
	if err != nil {
		return nil, err
	}
	return delivered, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, readerID, senderID string, at time.Time) ([]uint, error) {
	var read []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.Message{}).
			Where("receiver_id = ? AND sender_id = ? AND status IN ?", readerID, senderID, pendingFor(models.StatusRead)).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Model(&models.Message{}).
			Where("id IN ? AND status IN ?", ids, pendingFor(models.StatusRead)).
			Updates(map[string]interface{}{
				"status":       models.StatusRead,
				"read_at":      at,
				"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Message{}).
			Where("id IN ? AND status = ? AND read_at = ?", ids, models.StatusRead, at).
			Order("id ASC").
			Pluck("id", &read).Error
	})
	if err != nil {
		return nil, err
	}
	return read, nil
}

func (r *messageRepository) MarkGroupRead(ctx context.Context, groupID, readerID string, at time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alreadyRead := tx.Model(&models.MessageRead{}).Select("message_id").Where("user_id = ?", readerID)
		if err := tx.Model(&models.Message{}).
			Where("group_id = ? AND sender_id <> ?", groupID, readerID).
			Where("id NOT IN (?)", alreadyRead).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		reads := make([]models.MessageRead, 0, len(ids))
		for _, id := range ids {
			reads = append(reads, models.MessageRead{MessageID: id, UserID: readerID, ReadAt: at})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reads).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, id uint, content string) (models.Message, error) {
	result := r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"content":   content,
		"is_edited": true,
	})
	if result.Error != nil {
		return models.Message{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Message{}, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *messageRepository) SetPinned(ctx context.Context, message models.Message, pinned bool) ([]uint, error) {
	var unpinned []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if pinned {
			if err := tx.Model(&models.Message{}).
				Where("room_id = ? AND is_pinned = ? AND id <> ?", message.RoomID, true, message.ID).
				Pluck("id", &unpinned).Error; err != nil {
				return err
			}
			if len(unpinned) > 0 {
				if err := tx.Model(&models.Message{}).Where("id IN ?", unpinned).Update("is_pinned", false).Error; err != nil {
					return err
				}
			}
		}
		return tx.Model(&models.Message{}).Where("id = ?", message.ID).Update("is_pinned", pinned).Error
	})
	if err != nil {
		return nil, err
	}
	return unpinned, nil
}

func (r *messageRepository) ToggleReaction(ctx context.Context, messageID uint, userID, emoji string) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.MessageReaction
		err := tx.Where("message_id = ? AND user_id = ?", messageID, userID).First(&existing).Error
		switch {
		case err == nil && existing.Emoji == emoji:
			removed = true
			return tx.Where("message_id = ? AND user_id = ?", messageID, userID).Delete(&models.MessageReaction{}).Error
		case err == nil:
			return tx.Model(&models.MessageReaction{}).
				Where("message_id = ? AND user_id = ?", messageID, userID).
				Update("emoji", emoji).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}).Error
		default:
			return err
		}
	})
	return removed, err
}

func (r *messageRepository) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id IN ?", ids).Delete(&models.MessageReaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN ?", ids).Delete(&models.MessageRead{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&models.Message{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

func (r *messageRepository) DeleteByGroup(ctx context.Context, groupID string) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Message{}).Where("group_id = ?", groupID).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if _, err := r.DeleteByIDs(ctx, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *messageRepository) Pinned(ctx context.Context, roomID string) ([]models.Message, error) {
	var messages []models.Message
	if err := r.db.WithContext(ctx).Where("room_id = ? AND is_pinned = ?", roomID, true).Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}
