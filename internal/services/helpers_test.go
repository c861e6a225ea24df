package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"vouchportal/internal/content"
	"vouchportal/internal/identity"
	"vouchportal/internal/models"
	"vouchportal/internal/rank"
	"vouchportal/internal/repositories"
	"vouchportal/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockPublisher is a mock implementation of services.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(exchange, routingKey string, body []byte) error {
	args := m.Called(exchange, routingKey, body)
	return args.Error(0)
}

// published decodes every notification sent with the given type.
func (m *MockPublisher) published(t *testing.T, notificationType string) []services.Notification {
	t.Helper()
	var out []services.Notification
	for _, call := range m.Calls {
		if call.Method != "Publish" || call.Arguments.String(1) != "vouch."+notificationType {
			continue
		}
		var n services.Notification
		require.NoError(t, json.Unmarshal(call.Arguments.Get(2).([]byte), &n))
		out = append(out, n)
	}
	return out
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repositories.Migrate(db))
	return db
}

type fixture struct {
	ctx     context.Context
	db      *gorm.DB
	store   *repositories.GORMStore
	clock   *testClock
	pub     *MockPublisher
	ledger  *services.LedgerService
	users   *services.UserService
	invites *services.InviteService
}

type fixtureOption func(*services.LedgerOptions)

func withRanks(t *testing.T, table string) fixtureOption {
	ranks, err := rank.Parse(table)
	require.NoError(t, err)
	return func(o *services.LedgerOptions) { o.Ranks = ranks }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := newTestDB(t)
	clock := &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	store := repositories.NewGORMStore(db, clock.Now)

	pub := new(MockPublisher)
	pub.On("Publish", services.NotificationExchange, mock.Anything, mock.Anything).Return(nil).Maybe()

	ledgerOpts := services.LedgerOptions{
		Ranks:        rank.Default(),
		Filter:       content.NewFilter(content.DefaultBannedTerms, content.DefaultMaxLength),
		MutualWindow: 48 * time.Hour,
		Now:          clock.Now,
	}
	for _, opt := range opts {
		opt(&ledgerOpts)
	}
	ledger := services.NewLedgerService(store, pub, ledgerOpts)

	return &fixture{
		ctx:     context.Background(),
		db:      db,
		store:   store,
		clock:   clock,
		pub:     pub,
		ledger:  ledger,
		users:   services.NewUserService(store, ledger, clock.Now),
		invites: services.NewInviteService(store, 7*24*time.Hour, clock.Now),
	}
}

func (f *fixture) register(t *testing.T, id, handle string) *models.User {
	t.Helper()
	user, err := f.users.EnsureUser(f.ctx, identity.Identity{ExternalID: id, DisplayName: handle, Handle: handle})
	require.NoError(t, err)
	return user
}

func (f *fixture) user(t *testing.T, id string) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.First(&u, "external_id = ?", id).Error)
	return &u
}

func (f *fixture) confirmedCount(t *testing.T, userID string) int {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Vouch{}).
		Where("to_user_id = ? AND is_pending = ?", userID, false).
		Count(&n).Error)
	return int(n)
}

func (f *fixture) eventCount(t *testing.T, eventType string) int {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Event{}).Where("type = ?", eventType).Count(&n).Error)
	return int(n)
}
