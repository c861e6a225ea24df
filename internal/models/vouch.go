package models

import "time"

// Vouch is a trust assertion from one user to a recipient handle. ToUserID is
// nil while the recipient has not registered.
type Vouch struct {
	ID           string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FromUserID   string  `json:"from_user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_vouch_from_key,priority:1;uniqueIndex:idx_vouch_from_to,priority:1"`
	ToUserID     *string `json:"to_user_id" gorm:"type:varchar(64);index;uniqueIndex:idx_vouch_from_to,priority:2"`
	ToHandle     string  `json:"to_handle" gorm:"type:varchar(64);not null"`
	RecipientKey string  `json:"-" gorm:"type:varchar(64);not null;index;uniqueIndex:idx_vouch_from_key,priority:2"`
	Message      string  `json:"message" gorm:"type:text"`
	IsPending    bool    `json:"is_pending" gorm:"not null;index"`
	Approved     bool    `json:"approved" gorm:"not null;default:true"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at" gorm:"autoUpdateTime:false"` // set only by edits
}

// Recipient is either a PendingRecipient or a ConfirmedRecipient.
type Recipient interface {
	Handle() string
	isRecipient()
}

// PendingRecipient is a handle that has not registered yet.
type PendingRecipient struct {
	ToHandle string
}

// ConfirmedRecipient is a registered user.
type ConfirmedRecipient struct {
	ToHandle string
	UserID   string
}

func (p PendingRecipient) Handle() string   { return p.ToHandle }
func (c ConfirmedRecipient) Handle() string { return c.ToHandle }
func (PendingRecipient) isRecipient()       {}
func (ConfirmedRecipient) isRecipient()     {}

// Recipient returns the typed view of the vouch target.
func (v *Vouch) Recipient() Recipient {
	if v.ToUserID == nil {
		return PendingRecipient{ToHandle: v.ToHandle}
	}
	return ConfirmedRecipient{ToHandle: v.ToHandle, UserID: *v.ToUserID}
}

// Confirm links the vouch to a registered user. It never un-confirms.
func (v *Vouch) Confirm(userID string) {
	id := userID
	v.ToUserID = &id
	v.IsPending = false
}
