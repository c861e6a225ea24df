package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vouchportal/internal/models"

	"gorm.io/gorm"
)

// GORMEventRepository is a GORM implementation of EventRepository.
type GORMEventRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGORMEventRepository creates a new instance of GORMEventRepository.
func NewGORMEventRepository(db *gorm.DB, now func() time.Time) *GORMEventRepository {
	if now == nil {
		now = time.Now
	}
	return &GORMEventRepository{
		db:  db,
		now: now,
	}
}

// Log stores an event with metadata encoded as JSON.
func (r *GORMEventRepository) Log(ctx context.Context, eventType, userID string, metadata map[string]interface{}) error {
	body := "{}"
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode %s metadata: %w", eventType, err)
		}
		body = string(raw)
	}

	event := &models.Event{
		Type:      eventType,
		UserID:    userID,
		Metadata:  body,
		CreatedAt: r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to log %s event: %w", eventType, err)
	}
	return nil
}

func (r *GORMEventRepository) LogRankChange(ctx context.Context, event *models.RankEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to log rank change for %s: %w", event.UserID, err)
	}
	return nil
}

func (r *GORMEventRepository) CountByType(ctx context.Context, eventType string) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Event{}).Where("type = ?", eventType).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s events: %w", eventType, err)
	}
	return int(n), nil
}

// ListForUser returns a user's events in insertion order.
func (r *GORMEventRepository) ListForUser(ctx context.Context, userID string) ([]models.Event, error) {
	var events []models.Event
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events for %s: %w", userID, err)
	}
	return events, nil
}
