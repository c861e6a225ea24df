package repositories

import (
	"context"
	"time"

	"vouchportal/internal/models"
)

// InviteRepository defines the interface for invite data access.
type InviteRepository interface {
	Create(ctx context.Context, invite *models.Invite) error
	// SentSince reports whether fromID invited toHandle at or after since.
	SentSince(ctx context.Context, fromID, toHandle string, since time.Time) (bool, error)
}
