package repositories

import (
	"context"
	"fmt"
	"time"

	"vouchportal/internal/models"

	"gorm.io/gorm"
)

// GORMInviteRepository is a GORM implementation of InviteRepository.
type GORMInviteRepository struct {
	db *gorm.DB
}

// NewGORMInviteRepository creates a new instance of GORMInviteRepository.
func NewGORMInviteRepository(db *gorm.DB) *GORMInviteRepository {
	return &GORMInviteRepository{
		db: db,
	}
}

func (r *GORMInviteRepository) Create(ctx context.Context, invite *models.Invite) error {
	if err := r.db.WithContext(ctx).Create(invite).Error; err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

func (r *GORMInviteRepository) SentSince(ctx context.Context, fromID, toHandle string, since time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Invite{}).
		Where("from_user_id = ? AND to_handle = ? AND sent_at >= ?", fromID, toHandle, since).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check invites from %s: %w", fromID, err)
	}
	return n > 0, nil
}
