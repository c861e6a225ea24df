package repositories

import (
	"context"

	"vouchportal/internal/models"
)

// EventRepository records analytics and rank-change history.
type EventRepository interface {
	Log(ctx context.Context, eventType, userID string, metadata map[string]interface{}) error
	LogRankChange(ctx context.Context, event *models.RankEvent) error
	CountByType(ctx context.Context, eventType string) (int, error)
	ListForUser(ctx context.Context, userID string) ([]models.Event, error)
}
