package models

import "time"

// Analytics event types.
const (
	EventUserSignup       = "user_signup"
	EventReferralSignup   = "referral_signup"
	EventVouchCreated     = "vouch_created"
	EventPendingVouch     = "pending_vouch_created"
	EventPendingProcessed = "pending_vouches_processed"
	EventVouchEdited      = "vouch_edited"
	EventRankUp           = "rank_up"
	EventMutualVouch      = "mutual_vouch"
	EventInviteLogged     = "invite_logged"
)

// Event is an analytics log row. Metadata holds a JSON object.
type Event struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Type      string    `json:"event_type" gorm:"type:varchar(64);not null;index"`
	UserID    string    `json:"user_id" gorm:"type:varchar(64);index"`
	Metadata  string    `json:"metadata" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// RankEvent records a rank transition.
type RankEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(64);not null;index"`
	OldRank   string    `json:"old_rank" gorm:"type:varchar(32)"`
	NewRank   string    `json:"new_rank" gorm:"type:varchar(32)"`
	CreatedAt time.Time `json:"created_at"`
}
