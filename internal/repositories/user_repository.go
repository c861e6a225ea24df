package repositories

import (
	"context"

	"vouchportal/internal/models"
)

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	// UpdateProfile writes identity and streak columns, never counters.
	UpdateProfile(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByHandle looks a user up by normalized handle.
	GetByHandle(ctx context.Context, handleNorm string) (*models.User, error)
	// IncrementVouches adds n to total_vouches in place and returns the new total.
	IncrementVouches(ctx context.Context, id string, n int) (int, error)
	SetCounters(ctx context.Context, id string, total int, rank string) error
	ListAll(ctx context.Context) ([]models.User, error)
}
