package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vouchportal/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMVouchRepository is a GORM implementation of VouchRepository.
type GORMVouchRepository struct {
	db *gorm.DB
}

// NewGORMVouchRepository creates a new instance of GORMVouchRepository.
func NewGORMVouchRepository(db *gorm.DB) *GORMVouchRepository {
	return &GORMVouchRepository{
		db: db,
	}
}

// Create inserts a vouch. Unique index violations come back as ErrDuplicate.
func (r *GORMVouchRepository) Create(ctx context.Context, vouch *models.Vouch) error {
	if vouch.ID == "" {
		vouch.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(vouch).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("vouch from %s for %s: %w", vouch.FromUserID, vouch.RecipientKey, ErrDuplicate)
		}
		return fmt.Errorf("failed to create vouch: %w", err)
	}
	return nil
}

// GetByID retrieves a single vouch by its ID.
func (r *GORMVouchRepository) GetByID(ctx context.Context, id string) (*models.Vouch, error) {
	var vouch models.Vouch
	if err := r.db.WithContext(ctx).First(&vouch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("vouch with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get vouch by ID %s: %w", id, err)
	}
	return &vouch, nil
}

func (r *GORMVouchRepository) FindExisting(ctx context.Context, fromID, recipientKey, toUserID string) (*models.Vouch, error) {
	q := r.db.WithContext(ctx).Where("from_user_id = ?", fromID)
	if toUserID != "" {
		q = q.Where("recipient_key = ? OR to_user_id = ?", recipientKey, toUserID)
	} else {
		q = q.Where("recipient_key = ?", recipientKey)
	}

	var vouch models.Vouch
	if err := q.First(&vouch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("vouch from %s for %s: %w", fromID, recipientKey, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up existing vouch: %w", err)
	}
	return &vouch, nil
}

func (r *GORMVouchRepository) FindMutual(ctx context.Context, fromID, toID string, since, until time.Time) (*models.Vouch, error) {
	var vouch models.Vouch
	err := r.db.WithContext(ctx).
		Where("from_user_id = ? AND to_user_id = ? AND is_pending = ?", fromID, toID, false).
		Where("created_at >= ? AND created_at <= ?", since, until).
		First(&vouch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("mutual vouch %s -> %s: %w", fromID, toID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up mutual vouch: %w", err)
	}
	return &vouch, nil
}

func (r *GORMVouchRepository) ExistsConfirmed(ctx context.Context, fromID, toUserID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Vouch{}).
		Where("from_user_id = ? AND to_user_id = ? AND is_pending = ?", fromID, toUserID, false).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check vouch %s -> %s: %w", fromID, toUserID, err)
	}
	return n > 0, nil
}

// FindPending returns pending vouches for recipientKey, oldest first.
func (r *GORMVouchRepository) FindPending(ctx context.Context, recipientKey string) ([]models.Vouch, error) {
	var vouches []models.Vouch
	err := r.db.WithContext(ctx).
		Where("recipient_key = ? AND is_pending = ?", recipientKey, true).
		Order("created_at").
		Find(&vouches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending vouches for %s: %w", recipientKey, err)
	}
	return vouches, nil
}

func (r *GORMVouchRepository) ConfirmPending(ctx context.Context, ids []string, userID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Vouch{}).
		Where("id IN ? AND is_pending = ?", ids, true).
		UpdateColumns(map[string]interface{}{
			"to_user_id": userID,
			"is_pending": false,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return 0, fmt.Errorf("confirming vouches for %s: %w", userID, ErrDuplicate)
		}
		return 0, fmt.Errorf("failed to confirm pending vouches for %s: %w", userID, res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *GORMVouchRepository) UpdateMessage(ctx context.Context, id, message string, editedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Vouch{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"message":    message,
			"updated_at": editedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update vouch %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("vouch with ID %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *GORMVouchRepository) CountConfirmed(ctx context.Context, userID string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Vouch{}).
		Where("to_user_id = ? AND is_pending = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count vouches for %s: %w", userID, err)
	}
	return int(n), nil
}

func (r *GORMVouchRepository) ConfirmedCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		ToUserID string
		Total    int
	}
	err := r.db.WithContext(ctx).Model(&models.Vouch{}).
		Select("to_user_id, COUNT(*) AS total").
		Where("is_pending = ?", false).
		Group("to_user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate vouch counts: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ToUserID] = row.Total
	}
	return counts, nil
}

// ListReceived returns confirmed vouches for userID, newest first.
func (r *GORMVouchRepository) ListReceived(ctx context.Context, userID string) ([]models.Vouch, error) {
	var vouches []models.Vouch
	err := r.db.WithContext(ctx).
		Where("to_user_id = ? AND is_pending = ?", userID, false).
		Order("created_at DESC").
		Find(&vouches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list vouches for %s: %w", userID, err)
	}
	return vouches, nil
}

// ListGiven returns every vouch userID has given, pending included, newest first.
func (r *GORMVouchRepository) ListGiven(ctx context.Context, userID string) ([]models.Vouch, error) {
	var vouches []models.Vouch
	err := r.db.WithContext(ctx).
		Where("from_user_id = ?", userID).
		Order("created_at DESC").
		Find(&vouches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list vouches by %s: %w", userID, err)
	}
	return vouches, nil
}
