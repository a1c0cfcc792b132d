package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"node-ledger/models"
)

var (
	MinMineWithdrawal     = decimal.NewFromInt(25)
	MinReferralWithdrawal = decimal.NewFromInt(50)
)

// WithdrawalService gates and records withdrawal requests. Payout itself is
// done by an operator, who is notified of every accepted request.
type WithdrawalService struct {
	ledger   *Ledger
	notifier Notifier
}

func NewWithdrawalService(ledger *Ledger, notifier Notifier) *WithdrawalService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &WithdrawalService{ledger: ledger, notifier: notifier}
}

func minimumFor(bt models.BalanceType) decimal.Decimal {
	if bt == models.BalanceReferral {
		return MinReferralWithdrawal
	}
	return MinMineWithdrawal
}

// check applies the withdrawal rules in order against a locked user row.
func check(u *models.User, bt models.BalanceType, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(u.Balance(bt)) {
		return ErrInsufficientBalance
	}
	if minimum := minimumFor(bt); amount.LessThan(minimum) {
		return ErrBelowMinimum.WithMessage("Minimum withdrawal for %s balance is %s TRX", bt, minimum)
	}
	switch bt {
	case models.BalanceMine:
		if !u.HasPurchasedNode {
			return ErrPrerequisite.WithMessage("You must purchase any node first to withdraw from mine balance")
		}
	case models.BalanceReferral:
		if !u.HasPurchasedNode4 {
			return ErrPrerequisite.WithMessage("You must purchase the top tier node to withdraw from referral balance")
		}
	}
	return nil
}

// Withdraw validates, debits and records a withdrawal under the user's row
// lock. A rejected attempt is recorded too and its rule error is returned
// alongside the stored request. An unknown balance type is not recorded.
func (s *WithdrawalService) Withdraw(ctx context.Context, userID string, bt models.BalanceType, amount decimal.Decimal) (*models.WithdrawalRequest, error) {
	if !bt.Valid() {
		return nil, ErrInvalidBalanceType
	}

	req := &models.WithdrawalRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		BalanceType: bt,
		Amount:      amount,
	}
	var rejection error

	err := s.ledger.InTx(ctx, func(tx *gorm.DB) error {
		users, err := s.ledger.LockUsers(tx, userID)
		if err != nil {
			return err
		}

		req.CreatedAt = s.ledger.Now()
		if rejection = check(users[userID], bt, amount); rejection != nil {
			req.State = models.WithdrawalRejected
			req.Reason = rejection.Error()
		} else {
			if _, err := s.ledger.Debit(tx, userID, bt, amount); err != nil {
				return err
			}
			req.State = models.WithdrawalAccepted
		}

		if err := tx.Create(req).Error; err != nil {
			return errors.Wrap(err, "record withdrawal request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	withdrawalsTotal.WithLabelValues(string(bt), string(req.State)).Inc()
	fields := log.Fields{"user_id": userID, "balance_type": bt, "amount": amount.String()}
	if rejection != nil {
		log.WithFields(fields).WithField("reason", req.Reason).Info("[WITHDRAW] withdrawal rejected")
		return req, rejection
	}

	log.WithFields(fields).Info("[WITHDRAW] withdrawal accepted")
	s.notifier.Notify(ctx, fmt.Sprintf("Withdrawal %s: %s TRX from %s balance of user %s awaits payout",
		req.ID, amount.String(), bt, userID))
	return req, nil
}

// History lists a user's withdrawal requests, newest first.
func (s *WithdrawalService) History(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	if err := s.ledger.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "list withdrawals")
	}
	return out, nil
}

// WithdrawalCursor is a keyset position in (created_at, id) order. The zero
// value sits before every request.
type WithdrawalCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the position of w.
func CursorOf(w models.WithdrawalRequest) WithdrawalCursor {
	return WithdrawalCursor{CreatedAt: w.CreatedAt, ID: w.ID}
}

// Since returns withdrawal requests positioned strictly after c in
// (created_at, id) order, oldest first. A non-zero until excludes requests
// created after it.
func (s *WithdrawalService) Since(ctx context.Context, c WithdrawalCursor, until time.Time, limit int) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	q := s.ledger.DB.WithContext(ctx).Order("created_at ASC, id ASC")
	if !c.CreatedAt.IsZero() || c.ID != "" {
		q = q.Where("created_at > ? OR (created_at = ? AND id > ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
	if !until.IsZero() {
		q = q.Where("created_at <= ?", until)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "list withdrawals since cursor")
	}
	return out, nil
}
