package services

import (
	"context"
	"time"

	"vouchportal/internal/models"
	"vouchportal/internal/repositories"
)

// InviteService records invitations with a per-recipient cooldown.
type InviteService struct {
	store    repositories.Store
	cooldown time.Duration
	now      func() time.Time
}

// NewInviteService creates a new InviteService. now may be nil.
func NewInviteService(store repositories.Store, cooldown time.Duration, now func() time.Time) *InviteService {
	if now == nil {
		now = time.Now
	}
	return &InviteService{
		store:    store,
		cooldown: cooldown,
		now:      func() time.Time { return now().UTC() },
	}
}

// SendInvite records that fromUserID invited toHandle.
func (s *InviteService) SendInvite(ctx context.Context, fromUserID, toHandle string) (*models.Invite, error) {
	key := NormalizeHandle(toHandle)
	if key == "" {
		return nil, ErrValidation
	}

	var invite *models.Invite
	err := s.store.WithinTransaction(ctx, func(repos repositories.Repositories) error {
		sender, err := repos.Users.GetByID(ctx, fromUserID)
		if err != nil {
			return notFound(err, "sender %s", fromUserID)
		}
		if sender.HandleNorm == key {
			return ErrSelfInvite
		}

		now := s.now()
		if s.cooldown > 0 {
			recent, err := repos.Invites.SentSince(ctx, sender.ExternalID, key, now.Add(-s.cooldown))
			if err != nil {
				return err
			}
			if recent {
				return ErrInviteCooldown
			}
		}

		invite = &models.Invite{FromUserID: sender.ExternalID, ToHandle: key, SentAt: now}
		if err := repos.Invites.Create(ctx, invite); err != nil {
			return err
		}

		_, lookupErr := repos.Users.GetByHandle(ctx, key)
		return repos.Events.Log(ctx, models.EventInviteLogged, sender.ExternalID, map[string]interface{}{
			"to_handle":  key,
			"registered": lookupErr == nil,
		})
	})
	if err != nil {
		return nil, err
	}
	return invite, nil
}
