// Package gormpersistence implements the repository interfaces on top of GORM.
package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Sanket2004/text-sharing-app/internal/domain"
	"github.com/Sanket2004/text-sharing-app/internal/repository"
)

// GormMessageRepository is the GORM implementation of MessageRepository.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a GormMessageRepository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Append persists a single message. GORM fills ID and CreatedAt on success.
func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: failed to append message for room %q: %w", msg.RoomID, err)
	}
	return nil
}

// RecentByRoom fetches the newest limit messages for the room and returns
// them oldest first. The id tie-break keeps messages with equal timestamps in
// creation order.
func (r *GormMessageRepository) RecentByRoom(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: failed to load recent messages for room %q: %w", roomID, err)
	}

	// Reverse into ascending order for replay.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// PruneBefore deletes messages created before cutoff.
func (r *GormMessageRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.Message{})
	if res.Error != nil {
		return 0, fmt.Errorf("gorm: failed to prune messages before %v: %w", cutoff, res.Error)
	}
	return res.RowsAffected, nil
}
