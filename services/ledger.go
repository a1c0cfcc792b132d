package services

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"node-ledger/models"
)

// Ledger is the transactional store every balance mutation goes through.
// A mutation runs inside InTx and takes row locks on the users it touches
// with LockUsers before reading balances or flags.
type Ledger struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

func NewLedger(db *gorm.DB, clock clockwork.Clock) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ledger{DB: db, Clock: clock}
}

// Now is the ledger's notion of the current time, always UTC.
func (l *Ledger) Now() time.Time {
	return l.Clock.Now().UTC()
}

// InTx runs fn in a single database transaction.
func (l *Ledger) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return l.DB.WithContext(ctx).Transaction(fn)
}

// LockUsers row-locks the given users in ascending id order, so two
// transactions touching the same pair of users can never deadlock.
// Duplicate and empty ids are ignored. A missing user yields ErrUserNotFound.
func (l *Ledger) LockUsers(tx *gorm.DB, ids ...string) (map[string]*models.User, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)

	users := make(map[string]*models.User, len(uniq))
	for _, id := range uniq {
		var u models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, errors.Wrapf(err, "lock user %s", id)
		}
		users[id] = &u
	}
	return users, nil
}

// Credit adds amount to one balance of a user already locked by the caller.
func (l *Ledger) Credit(tx *gorm.DB, userID string, bt models.BalanceType, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, errors.Errorf("credit of negative amount %s", amount)
	}
	return l.apply(tx, userID, bt, amount)
}

// Debit subtracts amount from one balance of a user already locked by the
// caller. The balance never goes below zero.
func (l *Ledger) Debit(tx *gorm.DB, userID string, bt models.BalanceType, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, errors.Errorf("debit of negative amount %s", amount)
	}
	return l.apply(tx, userID, bt, amount.Neg())
}

func (l *Ledger) apply(tx *gorm.DB, userID string, bt models.BalanceType, delta decimal.Decimal) (decimal.Decimal, error) {
	if !bt.Valid() {
		return decimal.Zero, ErrInvalidBalanceType
	}

	// Re-read under the lock: earlier statements in this transaction may
	// already have moved the balance.
	var u models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, errors.Wrapf(err, "reload user %s", userID)
	}

	next := u.Balance(bt).Add(delta)
	if next.IsNegative() {
		return decimal.Zero, ErrInsufficientBalance
	}

	column := "mine_balance"
	if bt == models.BalanceReferral {
		column = "referral_balance"
	}
	if err := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			column:       next,
			"updated_at": l.Now(),
		}).Error; err != nil {
		return decimal.Zero, errors.Wrapf(err, "update %s for user %s", column, userID)
	}
	return next, nil
}

// GetUser reads a user without locking.
func (l *Ledger) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := l.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrapf(err, "get user %s", id)
	}
	return &u, nil
}
