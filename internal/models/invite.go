package models

import "time"

// Invite records that a user asked someone to join.
type Invite struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	FromUserID string    `json:"from_user_id" gorm:"type:varchar(64);not null;index:idx_invite_pair,priority:1"`
	ToHandle   string    `json:"to_handle" gorm:"type:varchar(64);not null;index:idx_invite_pair,priority:2"`
	SentAt     time.Time `json:"sent_at"`
}
