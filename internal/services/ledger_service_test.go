package services_test

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"vouchportal/internal/content"
	"vouchportal/internal/models"
	"vouchportal/internal/rank"
	"vouchportal/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSubmitVouch_ConfirmedRecipient(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	res, err := f.ledger.SubmitVouch(f.ctx, "1", "@Bob", "solid trader")
	require.NoError(t, err)

	assert.Equal(t, services.VouchConfirmed, res.Status)
	assert.False(t, res.Vouch.IsPending)
	require.NotNil(t, res.Vouch.ToUserID)
	assert.Equal(t, "2", *res.Vouch.ToUserID)
	assert.Equal(t, "@Bob", res.Vouch.ToHandle)
	assert.Equal(t, "bob", res.Vouch.RecipientKey)
	require.NotNil(t, res.Recipient)
	assert.Equal(t, 1, res.Recipient.TotalVouches)

	bob := f.user(t, "2")
	assert.Equal(t, 1, bob.TotalVouches)
	assert.Equal(t, rank.Unverified, bob.Rank)
	assert.Equal(t, 1, f.eventCount(t, models.EventVouchCreated))
	assert.Empty(t, f.pub.published(t, services.NotificationRankUp))
}

func TestSubmitVouch_PendingThenResolvedOnSignup(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")

	res, err := f.ledger.SubmitVouch(f.ctx, "1", "NewGuy", "met at the meetup")
	require.NoError(t, err)
	assert.Equal(t, services.VouchPending, res.Status)
	assert.True(t, res.Vouch.IsPending)
	assert.Nil(t, res.Vouch.ToUserID)
	assert.Nil(t, res.Recipient)
	assert.Equal(t, 1, f.eventCount(t, models.EventPendingVouch))

	newGuy := f.register(t, "9", "newguy")
	assert.Equal(t, 1, newGuy.TotalVouches)
	assert.Equal(t, 1, f.confirmedCount(t, "9"))
	assert.Equal(t, 1, f.eventCount(t, models.EventPendingProcessed))

	var stored models.Vouch
	require.NoError(t, f.db.First(&stored, "id = ?", res.Vouch.ID).Error)
	assert.False(t, stored.IsPending)
	require.NotNil(t, stored.ToUserID)
	assert.Equal(t, "9", *stored.ToUserID)

	// Running resolution again changes nothing.
	n, err := f.ledger.ResolvePending(f.ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, f.user(t, "9").TotalVouches)
	assert.Equal(t, 1, f.eventCount(t, models.EventPendingProcessed))
}

func TestResolvePending_MultipleSenders(t *testing.T) {
	f := newFixture(t, withRanks(t, "0:new,2:known"))
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	_, err := f.ledger.SubmitVouch(f.ctx, "1", "carol", "")
	require.NoError(t, err)
	_, err = f.ledger.SubmitVouch(f.ctx, "2", "@CAROL", "")
	require.NoError(t, err)

	carol := f.register(t, "3", "Carol")
	assert.Equal(t, 2, carol.TotalVouches)
	assert.Equal(t, "known", carol.Rank)

	rankUps := f.pub.published(t, services.NotificationRankUp)
	require.Len(t, rankUps, 1)
	assert.Equal(t, "3", rankUps[0].UserID)
	assert.Equal(t, "new", rankUps[0].OldRank)
	assert.Equal(t, "known", rankUps[0].NewRank)
}

func TestResolvePending_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.ResolvePending(f.ctx, "404")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestResolvePending_LeavesConflictsPending(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	_, err := f.ledger.SubmitVouch(f.ctx, "1", "bob", "")
	require.NoError(t, err)
	// alice also vouches for a handle nobody owns yet
	_, err = f.ledger.SubmitVouch(f.ctx, "1", "robert", "")
	require.NoError(t, err)
	// bob pre-vouches for the handle he is about to take
	_, err = f.ledger.SubmitVouch(f.ctx, "2", "robert", "")
	require.NoError(t, err)

	bob := f.register(t, "2", "robert")
	assert.Equal(t, 1, bob.TotalVouches)
	assert.Equal(t, 1, f.confirmedCount(t, "2"))

	var stillPending int64
	require.NoError(t, f.db.Model(&models.Vouch{}).Where("is_pending = ?", true).Count(&stillPending).Error)
	assert.Equal(t, int64(2), stillPending)

	n, err := f.ledger.ResolvePending(f.ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmitVouch_SelfVouch(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")

	for _, handle := range []string{"alice", "@Alice", "  ALICE "} {
		t.Run(handle, func(t *testing.T) {
			_, err := f.ledger.SubmitVouch(f.ctx, "1", handle, "me!")
			assert.ErrorIs(t, err, services.ErrSelfVouch)
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&models.Vouch{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSubmitVouch_Duplicates(t *testing.T) {
	t.Run("confirmed twice", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "1", "alice")
		f.register(t, "2", "bob")

		_, err := f.ledger.SubmitVouch(f.ctx, "1", "bob", "")
		require.NoError(t, err)
		_, err = f.ledger.SubmitVouch(f.ctx, "1", "@BOB", "again")
		assert.ErrorIs(t, err, services.ErrDuplicateVouch)
		assert.Equal(t, 1, f.user(t, "2").TotalVouches)
	})

	t.Run("pending twice", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "1", "alice")

		_, err := f.ledger.SubmitVouch(f.ctx, "1", "ghost", "")
		require.NoError(t, err)
		_, err = f.ledger.SubmitVouch(f.ctx, "1", "Ghost", "")
		assert.ErrorIs(t, err, services.ErrDuplicateVouch)
	})

	t.Run("after recipient renamed", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "1", "alice")
		f.register(t, "2", "bob")

		_, err := f.ledger.SubmitVouch(f.ctx, "1", "bob", "")
		require.NoError(t, err)
		f.register(t, "2", "robert")

		_, err = f.ledger.SubmitVouch(f.ctx, "1", "robert", "")
		assert.ErrorIs(t, err, services.ErrDuplicateVouch)
		assert.Equal(t, 1, f.user(t, "2").TotalVouches)
	})

	t.Run("different senders are fine", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "1", "alice")
		f.register(t, "2", "bob")
		f.register(t, "3", "carol")

		_, err := f.ledger.SubmitVouch(f.ctx, "1", "carol", "")
		require.NoError(t, err)
		_, err = f.ledger.SubmitVouch(f.ctx, "2", "carol", "")
		require.NoError(t, err)
		assert.Equal(t, 2, f.user(t, "3").TotalVouches)
	})
}

func TestSubmitVouch_Validation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	_, err := f.ledger.SubmitVouch(f.ctx, "1", "  @ ", "hi")
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = f.ledger.SubmitVouch(f.ctx, "1", "bob", strings.Repeat("x", content.DefaultMaxLength+1))
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = f.ledger.SubmitVouch(f.ctx, "404", "bob", "")
	assert.ErrorIs(t, err, services.ErrNotFound)

	assert.Zero(t, f.user(t, "2").TotalVouches)
}

func TestSubmitVouch_MessageIsFiltered(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	res, err := f.ledger.SubmitVouch(f.ctx, "1", "bob", "  great, not a SCAM at all  ")
	require.NoError(t, err)
	assert.Equal(t, "great, not a "+content.RedactionMarker+" at all", res.Vouch.Message)
}

func TestSubmitVouch_RankUpOnce(t *testing.T) {
	f := newFixture(t)
	f.register(t, "0", "target")
	for i := 1; i <= 4; i++ {
		f.register(t, fmt.Sprint(i), fmt.Sprintf("sender%d", i))
	}

	for i := 1; i <= 2; i++ {
		_, err := f.ledger.SubmitVouch(f.ctx, fmt.Sprint(i), "target", "")
		require.NoError(t, err)
	}
	assert.Empty(t, f.pub.published(t, services.NotificationRankUp))

	res, err := f.ledger.SubmitVouch(f.ctx, "3", "target", "")
	require.NoError(t, err)
	assert.Equal(t, rank.Verified, res.Recipient.Rank)

	rankUps := f.pub.published(t, services.NotificationRankUp)
	require.Len(t, rankUps, 1)
	assert.Equal(t, rank.Unverified, rankUps[0].OldRank)
	assert.Equal(t, rank.Verified, rankUps[0].NewRank)

	_, err = f.ledger.SubmitVouch(f.ctx, "4", "target", "")
	require.NoError(t, err)
	assert.Len(t, f.pub.published(t, services.NotificationRankUp), 1)

	var rankEvents []models.RankEvent
	require.NoError(t, f.db.Find(&rankEvents).Error)
	require.Len(t, rankEvents, 1)
	assert.Equal(t, "0", rankEvents[0].UserID)
	assert.Equal(t, 1, f.eventCount(t, models.EventRankUp))
}

func TestSubmitVouch_MutualWithinWindow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	_, err := f.ledger.SubmitVouch(f.ctx, "2", "alice", "")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.ledger.SubmitVouch(f.ctx, "1", "bob", "")
	require.NoError(t, err)

	mutual := f.pub.published(t, services.NotificationMutualVouch)
	require.Len(t, mutual, 1)
	assert.Equal(t, "1", mutual[0].UserID)
	assert.Equal(t, "2", mutual[0].OtherUserID)
	assert.Equal(t, 1, f.eventCount(t, models.EventMutualVouch))
}

func TestSubmitVouch_MutualOutsideWindow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	_, err := f.ledger.SubmitVouch(f.ctx, "2", "alice", "")
	require.NoError(t, err)
	f.clock.Advance(49 * time.Hour)
	_, err = f.ledger.SubmitVouch(f.ctx, "1", "bob", "")
	require.NoError(t, err)

	assert.Empty(t, f.pub.published(t, services.NotificationMutualVouch))
}

func TestSubmitVouch_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, withRanks(t, "0:new,1:seen"))
	f.pub.ExpectedCalls = nil
	f.pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("broker down"))

	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	res, err := f.ledger.SubmitVouch(f.ctx, "1", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, "seen", res.Recipient.Rank)
	f.pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestSubmitVouch_NilPublisher(t *testing.T) {
	f := newFixture(t)
	ledger := services.NewLedgerService(f.store, nil, services.LedgerOptions{Now: f.clock.Now})
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	res, err := ledger.SubmitVouch(f.ctx, "1", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, services.VouchConfirmed, res.Status)
}

func TestEditVouch(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	res, err := f.ledger.SubmitVouch(f.ctx, "1", "bob", "ok")
	require.NoError(t, err)
	created := res.Vouch.CreatedAt

	_, err = f.ledger.EditVouch(f.ctx, res.Vouch.ID, "2", "hijack")
	assert.ErrorIs(t, err, services.ErrNotAuthorized)

	_, err = f.ledger.EditVouch(f.ctx, "missing", "1", "x")
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = f.ledger.EditVouch(f.ctx, res.Vouch.ID, "1", strings.Repeat("y", content.DefaultMaxLength+1))
	assert.ErrorIs(t, err, services.ErrValidation)

	f.clock.Advance(time.Minute)
	edited, err := f.ledger.EditVouch(f.ctx, res.Vouch.ID, "1", "better than ok, no fraud")
	require.NoError(t, err)
	assert.Equal(t, "better than ok, no "+content.RedactionMarker, edited.Message)
	require.NotNil(t, edited.UpdatedAt)
	assert.True(t, edited.UpdatedAt.Equal(f.clock.Now()))

	var stored models.Vouch
	require.NoError(t, f.db.First(&stored, "id = ?", res.Vouch.ID).Error)
	assert.Equal(t, edited.Message, stored.Message)
	assert.True(t, stored.CreatedAt.Equal(created))
	assert.False(t, stored.IsPending)
	assert.Equal(t, 1, f.user(t, "2").TotalVouches)
	assert.Equal(t, 1, f.eventCount(t, models.EventVouchEdited))
}

func TestEditVouch_PendingStaysPending(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")

	res, err := f.ledger.SubmitVouch(f.ctx, "1", "ghost", "first")
	require.NoError(t, err)

	edited, err := f.ledger.EditVouch(f.ctx, res.Vouch.ID, "1", "second")
	require.NoError(t, err)
	assert.True(t, edited.IsPending)
	assert.Nil(t, edited.ToUserID)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t, withRanks(t, "0:new,1:seen"))
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")
	_, err := f.ledger.SubmitVouch(f.ctx, "1", "bob", "")
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.User{}).Where("external_id = ?", "2").
		Updates(map[string]interface{}{"total_vouches": 99, "rank": "bogus"}).Error)
	require.NoError(t, f.db.Model(&models.User{}).Where("external_id = ?", "1").
		Update("total_vouches", 5).Error)

	fixed, err := f.ledger.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)

	bob := f.user(t, "2")
	assert.Equal(t, 1, bob.TotalVouches)
	assert.Equal(t, "seen", bob.Rank)
	alice := f.user(t, "1")
	assert.Equal(t, 0, alice.TotalVouches)
	assert.Equal(t, "new", alice.Rank)

	fixed, err = f.ledger.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

// Counters must always match the confirmed rows, whatever order users sign
// up and vouch in.
func TestCountersMatchConfirmedRows(t *testing.T) {
	f := newFixture(t, withRanks(t, "0:a,2:b,4:c"))
	rng := rand.New(rand.NewSource(7))

	const people = 8
	registered := map[int]bool{}
	for step := 0; step < 120; step++ {
		from := rng.Intn(people)
		to := rng.Intn(people)
		if !registered[from] || rng.Intn(4) == 0 {
			f.register(t, fmt.Sprint(from), fmt.Sprintf("user%d", from))
			registered[from] = true
			continue
		}
		_, err := f.ledger.SubmitVouch(f.ctx, fmt.Sprint(from), fmt.Sprintf("USER%d", to), "")
		if err != nil {
			assert.True(t,
				errors.Is(err, services.ErrSelfVouch) || errors.Is(err, services.ErrDuplicateVouch),
				"unexpected error: %v", err)
		}
	}

	for id := range registered {
		u := f.user(t, fmt.Sprint(id))
		total := f.confirmedCount(t, u.ExternalID)
		assert.Equal(t, total, u.TotalVouches, "user %s", u.ExternalID)
		assert.Equal(t, f.ledger.RankFor(total), u.Rank, "user %s", u.ExternalID)
	}

	fixed, err := f.ledger.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

func TestVouchMessage_BannedTermsAtCapStayWithinCap(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")

	res, err := f.ledger.SubmitVouch(f.ctx, "1", "bob", strings.Repeat("fake", content.DefaultMaxLength/4))
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(res.Vouch.Message), content.DefaultMaxLength)

	edited, err := f.ledger.EditVouch(f.ctx, res.Vouch.ID, "1", strings.Repeat("scam", content.DefaultMaxLength/4))
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(edited.Message), content.DefaultMaxLength)

	var stored models.Vouch
	require.NoError(t, f.db.First(&stored, "id = ?", res.Vouch.ID).Error)
	assert.Equal(t, edited.Message, stored.Message)

	columns, err := f.db.Migrator().ColumnTypes(&models.Vouch{})
	require.NoError(t, err)
	for _, col := range columns {
		if col.Name() == "message" {
			assert.True(t, strings.EqualFold(col.DatabaseTypeName(), "text"), "message column is %s", col.DatabaseTypeName())
		}
	}
}

func TestSubmitVouch_RankUpUsesLockedCounter(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")
	f.register(t, "3", "carol")

	// bob's row already holds 3 vouches while the rank column still says
	// unverified, as a concurrent writer that committed first would leave it
	// for a transaction holding an older copy.
	require.NoError(t, f.db.Model(&models.User{}).Where("external_id = ?", "2").
		Updates(map[string]interface{}{"total_vouches": 3, "rank": rank.Unverified}).Error)
	// carol's rank label no longer exists in the table
	require.NoError(t, f.db.Model(&models.User{}).Where("external_id = ?", "3").
		Update("rank", "legacy").Error)

	res, err := f.ledger.SubmitVouch(f.ctx, "1", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Recipient.TotalVouches)
	assert.Equal(t, rank.Verified, res.Recipient.Rank)

	res, err = f.ledger.SubmitVouch(f.ctx, "1", "carol", "")
	require.NoError(t, err)
	assert.Equal(t, rank.Unverified, res.Recipient.Rank)

	assert.Empty(t, f.pub.published(t, services.NotificationRankUp))
	assert.Zero(t, f.eventCount(t, models.EventRankUp))
}

func TestResolvePending_RecountsConfirmedRows(t *testing.T) {
	f := newFixture(t)
	f.register(t, "1", "alice")
	f.register(t, "2", "bob")
	require.NoError(t, f.db.Model(&models.User{}).Where("external_id = ?", "2").
		Update("total_vouches", 5).Error)

	_, err := f.ledger.SubmitVouch(f.ctx, "1", "robert", "")
	require.NoError(t, err)

	bob := f.register(t, "2", "robert")
	assert.Equal(t, 1, bob.TotalVouches)
	assert.Equal(t, rank.Unverified, bob.Rank)
	assert.Equal(t, 1, f.user(t, "2").TotalVouches)
	assert.Empty(t, f.pub.published(t, services.NotificationRankUp))
}
