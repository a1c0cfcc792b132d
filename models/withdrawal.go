package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalState string

const (
	WithdrawalAccepted WithdrawalState = "accepted"
	WithdrawalRejected WithdrawalState = "rejected"
)

// WithdrawalRequest is an append-only record of every withdrawal attempt,
// accepted or not.
type WithdrawalRequest struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string          `gorm:"index;not null" json:"user_id"`
	BalanceType BalanceType     `gorm:"type:varchar(16);not null" json:"balance_type"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"amount"`
	State       WithdrawalState `gorm:"type:varchar(16);not null" json:"state"`
	Reason      string          `json:"reason,omitempty"`
	CreatedAt   time.Time       `gorm:"not null;index" json:"created_at"`
}
