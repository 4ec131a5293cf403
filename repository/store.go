package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Store groups the repositories over one database handle. Inside Transaction
// every repository shares the transaction.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store over db
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Repairs() RepairRepository {
	return &gormRepairRepository{db: s.db}
}

func (s *Store) Customers() CustomerRepository {
	return &gormCustomerRepository{db: s.db}
}

func (s *Store) Technicians() TechnicianRepository {
	return &gormTechnicianRepository{db: s.db}
}

func (s *Store) Users() UserRepository {
	return &gormUserRepository{db: s.db}
}

func (s *Store) Rewards() RewardLedgerRepository {
	return &gormRewardLedgerRepository{db: s.db}
}

func (s *Store) Notifications() NotificationRepository {
	return &gormNotificationRepository{db: s.db}
}

// Transaction runs fn inside a database transaction. Any error returned by fn rolls
// the whole transaction back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
