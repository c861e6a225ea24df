package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vouchportal/internal/identity"
	"vouchportal/internal/models"
	"vouchportal/internal/rank"
	"vouchportal/internal/repositories"
)

// Profile is a user together with their vouches and rank progress.
type Profile struct {
	User     *models.User   `json:"user"`
	Received []models.Vouch `json:"vouches_received"`
	Given    []models.Vouch `json:"vouches_given"`
	Progress rank.Progress  `json:"progress"`
}

// UserService handles user registration, activity and profile reads.
type UserService struct {
	store  repositories.Store
	ledger *LedgerService
	now    func() time.Time
}

// NewUserService creates a new UserService. now may be nil.
func NewUserService(store repositories.Store, ledger *LedgerService, now func() time.Time) *UserService {
	if now == nil {
		now = time.Now
	}
	return &UserService{
		store:  store,
		ledger: ledger,
		now:    func() time.Time { return now().UTC() },
	}
}

// EnsureUser gets or creates the user behind an identity assertion. It
// refreshes the display name and handle, ticks the streak, and resolves any
// pending vouches addressed to the user's handle. Resolution runs on every
// call with a handle, which also picks up pending rows that committed after a
// previous call looked for them.
func (s *UserService) EnsureUser(ctx context.Context, id identity.Identity) (*models.User, error) {
	if id.ExternalID == "" {
		return nil, fmt.Errorf("%w: external id is required", ErrValidation)
	}
	handle := strings.TrimLeft(strings.TrimSpace(id.Handle), "@")
	handleNorm := NormalizeHandle(handle)

	var (
		user  *models.User
		notes []Notification
	)
	err := s.store.WithinTransaction(ctx, func(repos repositories.Repositories) error {
		now := s.now()
		existing, err := repos.Users.GetByID(ctx, id.ExternalID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		if existing == nil {
			user = &models.User{
				ExternalID:   id.ExternalID,
				DisplayName:  id.DisplayName,
				Handle:       handle,
				HandleNorm:   handleNorm,
				Rank:         s.ledger.RankFor(0),
				FirstSeenAt:  now,
				LastActiveAt: now,
			}
			applyStreak(user, now)

			referrer, err := s.lookupReferrer(ctx, repos, id)
			if err != nil {
				return err
			}
			if referrer != "" {
				user.ReferrerID = &referrer
			}

			if err := repos.Users.Create(ctx, user); err != nil {
				return err
			}
			if err := repos.Events.Log(ctx, models.EventUserSignup, user.ExternalID, map[string]interface{}{
				"referrer_id": referrer,
				"handle":      handle,
			}); err != nil {
				return err
			}
			if referrer != "" {
				if err := repos.Events.Log(ctx, models.EventReferralSignup, user.ExternalID, map[string]interface{}{
					"referrer_id": referrer,
				}); err != nil {
					return err
				}
			}
		} else {
			user = existing
			if id.DisplayName != "" {
				user.DisplayName = id.DisplayName
			}
			if handleNorm != "" {
				user.Handle = handle
				user.HandleNorm = handleNorm
			}
			user.LastActiveAt = now
			applyStreak(user, now)
			if err := repos.Users.UpdateProfile(ctx, user); err != nil {
				return err
			}
		}

		if handleNorm == "" {
			return nil
		}
		_, notes, err = s.ledger.resolveWithin(ctx, repos, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.ledger.notify.send(notes)
	return user, nil
}

// lookupReferrer returns the referrer id only if it names another existing user.
func (s *UserService) lookupReferrer(ctx context.Context, repos repositories.Repositories, id identity.Identity) (string, error) {
	if id.ReferrerID == "" || id.ReferrerID == id.ExternalID {
		return "", nil
	}
	if _, err := repos.Users.GetByID(ctx, id.ReferrerID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return id.ReferrerID, nil
}

// TouchActivity records a qualifying action on activityDate and returns the
// updated user.
func (s *UserService) TouchActivity(ctx context.Context, userID string, activityDate time.Time) (*models.User, error) {
	var user *models.User
	err := s.store.WithinTransaction(ctx, func(repos repositories.Repositories) error {
		u, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return notFound(err, "user %s", userID)
		}
		user = u
		if !applyStreak(user, activityDate) {
			return nil
		}
		return repos.Users.UpdateProfile(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Touch records a qualifying action at the current time.
func (s *UserService) Touch(ctx context.Context, userID string) (*models.User, error) {
	return s.TouchActivity(ctx, userID, s.now())
}

// applyStreak advances the user's streak for a calendar day (UTC) and
// reports whether anything changed. Same-day and earlier dates are no-ops;
// the next day extends the streak; a longer gap restarts it at 1.
func applyStreak(u *models.User, at time.Time) bool {
	day := calendarDay(at)
	if u.LastStreakDate == nil {
		u.StreakDays = 1
		u.LastStreakDate = &day
		return true
	}

	gap := int(day.Sub(calendarDay(*u.LastStreakDate)).Hours() / 24)
	switch {
	case gap <= 0:
		return false
	case gap == 1:
		u.StreakDays++
	default:
		u.StreakDays = 1
	}
	u.LastStreakDate = &day
	return true
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GetProfile returns the user with received and given vouches and rank progress.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	repos := s.store.Repositories()
	user, err := repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user %s", userID)
	}
	received, err := repos.Vouches.ListReceived(ctx, userID)
	if err != nil {
		return nil, err
	}
	given, err := repos.Vouches.ListGiven(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		User:     user,
		Received: received,
		Given:    given,
		Progress: s.ledger.Ranks().Progress(user.TotalVouches),
	}, nil
}
