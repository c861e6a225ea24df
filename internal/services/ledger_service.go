package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"vouchportal/internal/content"
	"vouchportal/internal/models"
	"vouchportal/internal/rank"
	"vouchportal/internal/repositories"
)

// VouchStatus tells callers whether a submitted vouch counted immediately.
type VouchStatus string

const (
	VouchConfirmed VouchStatus = "confirmed"
	VouchPending   VouchStatus = "pending"
)

// SubmitResult is the outcome of SubmitVouch.
type SubmitResult struct {
	Vouch  *models.Vouch
	Status VouchStatus
	// Recipient is the updated recipient for confirmed vouches, nil otherwise.
	Recipient *models.User
}

// LedgerOptions configures a LedgerService.
type LedgerOptions struct {
	Ranks        rank.Thresholds
	Filter       *content.Filter
	MutualWindow time.Duration
	Now          func() time.Time
}

// LedgerService owns vouch records and keeps recipients' counters and ranks
// in step with them.
type LedgerService struct {
	store        repositories.Store
	ranks        rank.Thresholds
	filter       *content.Filter
	mutualWindow time.Duration
	now          func() time.Time
	notify       notifier
}

// NewLedgerService creates a new LedgerService. publisher may be nil, in which
// case notifications are dropped with a log line.
func NewLedgerService(store repositories.Store, publisher EventPublisher, opts LedgerOptions) *LedgerService {
	if opts.Filter == nil {
		opts.Filter = content.NewFilter(content.DefaultBannedTerms, content.DefaultMaxLength)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.Ranks.Steps()) == 0 {
		opts.Ranks = rank.Default()
	}
	return &LedgerService{
		store:        store,
		ranks:        opts.Ranks,
		filter:       opts.Filter,
		mutualWindow: opts.MutualWindow,
		now:          func() time.Time { return opts.Now().UTC() },
		notify:       notifier{publisher: publisher},
	}
}

// Ranks returns the rank table in use.
func (s *LedgerService) Ranks() rank.Thresholds {
	return s.ranks
}

// RankFor maps a confirmed vouch count to its rank label.
func (s *LedgerService) RankFor(total int) string {
	return s.ranks.RankFor(total)
}

func (s *LedgerService) cleanMessage(message string) (string, error) {
	msg, err := s.filter.Clean(message)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return msg, nil
}

// SubmitVouch records a vouch from fromUserID for toHandle. The vouch is
// confirmed when the handle belongs to a registered user and pending otherwise.
func (s *LedgerService) SubmitVouch(ctx context.Context, fromUserID, toHandle, message string) (*SubmitResult, error) {
	key := NormalizeHandle(toHandle)
	if key == "" {
		return nil, fmt.Errorf("%w: recipient handle is required", ErrValidation)
	}
	msg, err := s.cleanMessage(message)
	if err != nil {
		return nil, err
	}

	var (
		result *SubmitResult
		notes  []Notification
	)
	err = s.store.WithinTransaction(ctx, func(repos repositories.Repositories) error {
		sender, err := repos.Users.GetByID(ctx, fromUserID)
		if err != nil {
			return notFound(err, "sender %s", fromUserID)
		}
		if sender.HandleNorm != "" && sender.HandleNorm == key {
			return ErrSelfVouch
		}

		recipient, err := repos.Users.GetByHandle(ctx, key)
		if err != nil {
			if !errors.Is(err, repositories.ErrNotFound) {
				return err
			}
			recipient = nil
		}
		toUserID := ""
		if recipient != nil {
			if recipient.ExternalID == sender.ExternalID {
				return ErrSelfVouch
			}
			toUserID = recipient.ExternalID
		}

		if _, err := repos.Vouches.FindExisting(ctx, sender.ExternalID, key, toUserID); err == nil {
			return ErrDuplicateVouch
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		now := s.now()
		vouch := &models.Vouch{
			FromUserID:   sender.ExternalID,
			ToHandle:     strings.TrimSpace(toHandle),
			RecipientKey: key,
			Message:      msg,
			IsPending:    true,
			Approved:     true,
			CreatedAt:    now,
		}
		if recipient != nil {
			vouch.Confirm(recipient.ExternalID)
		}
		if err := repos.Vouches.Create(ctx, vouch); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return ErrDuplicateVouch
			}
			return err
		}

		switch r := vouch.Recipient().(type) {
		case models.PendingRecipient:
			result = &SubmitResult{Vouch: vouch, Status: VouchPending}
			return repos.Events.Log(ctx, models.EventPendingVouch, sender.ExternalID, map[string]interface{}{
				"vouch_id":  vouch.ID,
				"to_handle": r.Handle(),
			})

		case models.ConfirmedRecipient:
			rankNotes, err := s.applyConfirmed(ctx, repos, recipient, 1, false)
			if err != nil {
				return err
			}
			notes = append(notes, rankNotes...)

			mutual, err := s.detectMutual(ctx, repos, sender.ExternalID, r.UserID, now)
			if err != nil {
				return err
			}
			notes = append(notes, mutual...)

			result = &SubmitResult{Vouch: vouch, Status: VouchConfirmed, Recipient: recipient}
			return repos.Events.Log(ctx, models.EventVouchCreated, sender.ExternalID, map[string]interface{}{
				"vouch_id":    vouch.ID,
				"to_user":     r.UserID,
				"vouch_count": recipient.TotalVouches,
			})
		}
		return fmt.Errorf("unexpected recipient type %T", vouch.Recipient())
	})
	if err != nil {
		return nil, err
	}

	s.notify.send(notes)
	return result, nil
}

// applyConfirmed adds n confirmed vouches to user, recomputes the rank and
// records a rank-up when the bucket rises. The previous rank is derived from
// the counter read under the row lock, never from the copy loaded earlier.
// With recount set the total is re-derived from the confirmed rows. user is
// updated in place.
func (s *LedgerService) applyConfirmed(ctx context.Context, repos repositories.Repositories, user *models.User, n int, recount bool) ([]Notification, error) {
	total, err := repos.Users.IncrementVouches(ctx, user.ExternalID, n)
	if err != nil {
		return nil, err
	}
	oldRank := s.ranks.RankFor(total - n)

	if recount {
		counted, err := repos.Vouches.CountConfirmed(ctx, user.ExternalID)
		if err != nil {
			return nil, err
		}
		if counted != total {
			log.Printf("Cached total for user %s drifted: %d, confirmed rows %d", user.ExternalID, total, counted)
			total = counted
		}
	}

	newRank := s.ranks.RankFor(total)
	if err := repos.Users.SetCounters(ctx, user.ExternalID, total, newRank); err != nil {
		return nil, err
	}
	user.TotalVouches = total
	user.Rank = newRank

	if s.ranks.Compare(newRank, oldRank) <= 0 {
		return nil, nil
	}

	if err := repos.Events.LogRankChange(ctx, &models.RankEvent{
		UserID:  user.ExternalID,
		OldRank: oldRank,
		NewRank: newRank,
	}); err != nil {
		return nil, err
	}
	if err := repos.Events.Log(ctx, models.EventRankUp, user.ExternalID, map[string]interface{}{
		"old_rank": oldRank,
		"new_rank": newRank,
	}); err != nil {
		return nil, err
	}
	return []Notification{{
		Type:    NotificationRankUp,
		UserID:  user.ExternalID,
		OldRank: oldRank,
		NewRank: newRank,
		At:      s.now(),
	}}, nil
}

// detectMutual looks for a confirmed recipient -> sender vouch created within
// the mutual window around now.
func (s *LedgerService) detectMutual(ctx context.Context, repos repositories.Repositories, senderID, recipientID string, now time.Time) ([]Notification, error) {
	if s.mutualWindow <= 0 {
		return nil, nil
	}
	_, err := repos.Vouches.FindMutual(ctx, recipientID, senderID, now.Add(-s.mutualWindow), now.Add(s.mutualWindow))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := repos.Events.Log(ctx, models.EventMutualVouch, senderID, map[string]interface{}{
		"other_user": recipientID,
	}); err != nil {
		return nil, err
	}
	return []Notification{{
		Type:        NotificationMutualVouch,
		UserID:      senderID,
		OtherUserID: recipientID,
		At:          now,
	}}, nil
}

// ResolvePending confirms every pending vouch addressed to the user's handle
// and returns how many were confirmed. Running it again is a no-op.
func (s *LedgerService) ResolvePending(ctx context.Context, userID string) (int, error) {
	var (
		count int
		notes []Notification
	)
	err := s.store.WithinTransaction(ctx, func(repos repositories.Repositories) error {
		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return notFound(err, "user %s", userID)
		}
		count, notes, err = s.resolveWithin(ctx, repos, user)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify.send(notes)
	return count, nil
}

// resolveWithin does the work of ResolvePending inside the caller's
// transaction. Pending rows that would become a self-vouch or duplicate a
// confirmed vouch are left pending.
func (s *LedgerService) resolveWithin(ctx context.Context, repos repositories.Repositories, user *models.User) (int, []Notification, error) {
	if user.HandleNorm == "" {
		return 0, nil, nil
	}
	pending, err := repos.Vouches.FindPending(ctx, user.HandleNorm)
	if err != nil {
		return 0, nil, err
	}

	ids := make([]string, 0, len(pending))
	for _, v := range pending {
		if v.FromUserID == user.ExternalID {
			log.Printf("Leaving pending vouch %s unresolved: sender is the recipient %s", v.ID, user.ExternalID)
			continue
		}
		dup, err := repos.Vouches.ExistsConfirmed(ctx, v.FromUserID, user.ExternalID)
		if err != nil {
			return 0, nil, err
		}
		if dup {
			log.Printf("Leaving pending vouch %s unresolved: %s already vouched for %s", v.ID, v.FromUserID, user.ExternalID)
			continue
		}
		ids = append(ids, v.ID)
	}
	if len(ids) == 0 {
		return 0, nil, nil
	}

	count, err := repos.Vouches.ConfirmPending(ctx, ids, user.ExternalID)
	if err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	log.Printf("Resolved %d pending vouch(es) for @%s", count, user.HandleNorm)

	notes, err := s.applyConfirmed(ctx, repos, user, count, true)
	if err != nil {
		return 0, nil, err
	}
	if err := repos.Events.Log(ctx, models.EventPendingProcessed, user.ExternalID, map[string]interface{}{
		"handle":            user.HandleNorm,
		"vouches_processed": count,
		"new_rank":          user.Rank,
	}); err != nil {
		return 0, nil, err
	}
	return count, notes, nil
}

// EditVouch replaces the message of a vouch authored by requestingUserID.
func (s *LedgerService) EditVouch(ctx context.Context, vouchID, requestingUserID, newMessage string) (*models.Vouch, error) {
	msg, err := s.cleanMessage(newMessage)
	if err != nil {
		return nil, err
	}

	var updated *models.Vouch
	err = s.store.WithinTransaction(ctx, func(repos repositories.Repositories) error {
		vouch, err := repos.Vouches.GetByID(ctx, vouchID)
		if err != nil {
			return notFound(err, "vouch %s", vouchID)
		}
		if vouch.FromUserID != requestingUserID {
			return ErrNotAuthorized
		}

		now := s.now()
		if err := repos.Vouches.UpdateMessage(ctx, vouch.ID, msg, now); err != nil {
			return err
		}
		vouch.Message = msg
		vouch.UpdatedAt = &now
		updated = vouch

		return repos.Events.Log(ctx, models.EventVouchEdited, requestingUserID, map[string]interface{}{
			"vouch_id": vouch.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Reconcile rebuilds every user's cached total and rank from the vouch rows
// and returns how many users were corrected.
func (s *LedgerService) Reconcile(ctx context.Context) (int, error) {
	fixed := 0
	err := s.store.WithinTransaction(ctx, func(repos repositories.Repositories) error {
		counts, err := repos.Vouches.ConfirmedCounts(ctx)
		if err != nil {
			return err
		}
		users, err := repos.Users.ListAll(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			total := counts[u.ExternalID]
			r := s.ranks.RankFor(total)
			if u.TotalVouches == total && u.Rank == r {
				continue
			}
			log.Printf("Reconciling user %s: total %d -> %d, rank %s -> %s", u.ExternalID, u.TotalVouches, total, u.Rank, r)
			if err := repos.Users.SetCounters(ctx, u.ExternalID, total, r); err != nil {
				return err
			}
			fixed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return fixed, nil
}
