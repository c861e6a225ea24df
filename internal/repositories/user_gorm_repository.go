package repositories

import (
	"context"
	"errors"
	"fmt"

	"vouchportal/internal/models"

	"gorm.io/gorm"
)

// GORMUserRepository is a GORM implementation of UserRepository.
type GORMUserRepository struct {
	db *gorm.DB
}

// NewGORMUserRepository creates a new instance of GORMUserRepository.
func NewGORMUserRepository(db *gorm.DB) *GORMUserRepository {
	return &GORMUserRepository{
		db: db,
	}
}

// Create creates a new user in the database.
func (r *GORMUserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("user %s: %w", user.ExternalID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateProfile writes the identity and activity columns of user. Counter
// columns are left alone so concurrent increments are never overwritten.
func (r *GORMUserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	res := r.db.WithContext(ctx).Model(user).
		Select("display_name", "handle", "handle_norm", "streak_days", "last_streak_date", "last_active_at").
		Updates(user)
	if res.Error != nil {
		return fmt.Errorf("failed to update user %s: %w", user.ExternalID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user with ID %s: %w", user.ExternalID, ErrNotFound)
	}
	return nil
}

// GetByID retrieves a user by external id.
func (r *GORMUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "external_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by ID %s: %w", id, err)
	}
	return &user, nil
}

// GetByHandle retrieves the most recently active user holding handleNorm.
func (r *GORMUserRepository) GetByHandle(ctx context.Context, handleNorm string) (*models.User, error) {
	if handleNorm == "" {
		return nil, fmt.Errorf("empty handle: %w", ErrNotFound)
	}
	var user models.User
	err := r.db.WithContext(ctx).
		Where("handle_norm = ?", handleNorm).
		Order("last_active_at DESC").
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user with handle %s: %w", handleNorm, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by handle %s: %w", handleNorm, err)
	}
	return &user, nil
}

// IncrementVouches bumps total_vouches with a single UPDATE so concurrent
// writers serialize on the row lock, then reads the result back.
func (r *GORMUserRepository) IncrementVouches(ctx context.Context, id string, n int) (int, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.User{}).
		Where("external_id = ?", id).
		UpdateColumn("total_vouches", gorm.Expr("total_vouches + ?", n))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to increment vouches for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("user with ID %s: %w", id, ErrNotFound)
	}

	var total int
	if err := db.Model(&models.User{}).
		Select("total_vouches").
		Where("external_id = ?", id).
		Row().Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to read vouches for %s: %w", id, err)
	}
	return total, nil
}

// SetCounters overwrites the cached total and rank.
func (r *GORMUserRepository) SetCounters(ctx context.Context, id string, total int, rank string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("external_id = ?", id).
		UpdateColumns(map[string]interface{}{
			"total_vouches": total,
			"rank":          rank,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set counters for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user with ID %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListAll returns every user ordered by id.
func (r *GORMUserRepository) ListAll(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Order("external_id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
