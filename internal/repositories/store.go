package repositories

import (
	"context"
	"time"

	"vouchportal/internal/models"

	"gorm.io/gorm"
)

// Repositories bundles the repositories that share one database handle.
type Repositories struct {
	Users   UserRepository
	Vouches VouchRepository
	Events  EventRepository
	Invites InviteRepository
}

// Transactor runs fn with repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(repos Repositories) error) error
}

// Store gives access to repositories both inside and outside a transaction.
type Store interface {
	Transactor
	Repositories() Repositories
}

// GORMStore hands out GORM repositories, optionally inside a transaction.
type GORMStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGORMStore creates a store over db. now stamps event rows; nil means time.Now.
func NewGORMStore(db *gorm.DB, now func() time.Time) *GORMStore {
	return &GORMStore{db: db, now: now}
}

// Repositories returns repositories that run outside any transaction.
func (s *GORMStore) Repositories() Repositories {
	return s.bind(s.db)
}

func (s *GORMStore) WithinTransaction(ctx context.Context, fn func(repos Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.bind(tx))
	})
}

func (s *GORMStore) bind(db *gorm.DB) Repositories {
	return Repositories{
		Users:   NewGORMUserRepository(db),
		Vouches: NewGORMVouchRepository(db),
		Events:  NewGORMEventRepository(db, s.now),
		Invites: NewGORMInviteRepository(db),
	}
}

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Vouch{},
		&models.Event{},
		&models.RankEvent{},
		&models.Invite{},
	)
}
