package repositories

import (
	"context"
	"time"

	"vouchportal/internal/models"
)

// VouchRepository defines the interface for vouch data access.
type VouchRepository interface {
	Create(ctx context.Context, vouch *models.Vouch) error
	GetByID(ctx context.Context, id string) (*models.Vouch, error)
	// FindExisting returns a vouch from fromID that targets either recipientKey
	// or, when toUserID is non-empty, that user. Pending rows are included.
	FindExisting(ctx context.Context, fromID, recipientKey, toUserID string) (*models.Vouch, error)
	// FindMutual returns a confirmed vouch fromID -> toID created in [since, until].
	FindMutual(ctx context.Context, fromID, toID string, since, until time.Time) (*models.Vouch, error)
	// ExistsConfirmed reports whether fromID already has a confirmed vouch for toUserID.
	ExistsConfirmed(ctx context.Context, fromID, toUserID string) (bool, error)
	FindPending(ctx context.Context, recipientKey string) ([]models.Vouch, error)
	// ConfirmPending links still-pending rows in ids to userID and reports how many changed.
	ConfirmPending(ctx context.Context, ids []string, userID string) (int, error)
	UpdateMessage(ctx context.Context, id, message string, editedAt time.Time) error
	CountConfirmed(ctx context.Context, userID string) (int, error)
	// ConfirmedCounts returns confirmed vouches received, keyed by user id.
	ConfirmedCounts(ctx context.Context) (map[string]int, error)
	ListReceived(ctx context.Context, userID string) ([]models.Vouch, error)
	ListGiven(ctx context.Context, userID string) ([]models.Vouch, error)
}
