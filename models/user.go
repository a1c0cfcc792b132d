package models

import (
	"github.com/shopspring/decimal"
)

// User owns two balances and the purchase flags that gate withdrawals.
// Both flags only ever go from false to true.
type User struct {
	ID           string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Username     string  `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string  `gorm:"not null" json:"-"`
	ReferCode    string  `gorm:"uniqueIndex;not null" json:"refer_code"`
	ReferredBy   *string `gorm:"index" json:"referred_by,omitempty"` // referrer user id

	MineBalance     decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"mine_balance"`
	ReferralBalance decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"referral_balance"`

	HasPurchasedNode  bool `gorm:"not null;default:false" json:"has_purchased_node"`
	HasPurchasedNode4 bool `gorm:"not null;default:false" json:"has_purchased_node4"`

	Timestamps
}

// BalanceType selects one of the two user balances.
type BalanceType string

const (
	BalanceMine     BalanceType = "mine"
	BalanceReferral BalanceType = "referral"
)

func (b BalanceType) Valid() bool {
	return b == BalanceMine || b == BalanceReferral
}

// Balance returns the current value of the selected balance.
func (u *User) Balance(t BalanceType) decimal.Decimal {
	if t == BalanceReferral {
		return u.ReferralBalance
	}
	return u.MineBalance
}
