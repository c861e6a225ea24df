package models

import "time"

// User is a member known through the identity handshake.
type User struct {
	ExternalID     string     `json:"external_id" gorm:"primaryKey;type:varchar(64)"`
	DisplayName    string     `json:"display_name" gorm:"type:varchar(255)"`
	Handle         string     `json:"handle,omitempty" gorm:"type:varchar(64)"`
	HandleNorm     string     `json:"-" gorm:"type:varchar(64);index"`
	TotalVouches   int        `json:"total_vouches" gorm:"not null"`
	Rank           string     `json:"rank" gorm:"type:varchar(32);not null"`
	StreakDays     int        `json:"streak_days" gorm:"not null"`
	LastStreakDate *time.Time `json:"last_streak_date,omitempty"`
	ReferrerID     *string    `json:"referrer_id,omitempty" gorm:"type:varchar(64)"`
	FirstSeenAt    time.Time  `json:"first_seen_at"`
	LastActiveAt   time.Time  `json:"last_active_at"`
}
