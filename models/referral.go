package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReferralState string

const (
	ReferralPending ReferralState = "pending"
	ReferralValid   ReferralState = "valid"
)

// Referral links a referrer to the user who signed up with their code.
// It becomes valid once, when the referred user activates a first node.
type Referral struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ReferrerID  string          `gorm:"index;not null" json:"referrer_id"`
	ReferredID  string          `gorm:"uniqueIndex;not null" json:"referred_id"`
	State       ReferralState   `gorm:"type:varchar(16);not null" json:"state"`
	BonusAmount decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"bonus_amount"`
	JoinedAt    time.Time       `gorm:"not null" json:"joined_at"`
	ValidatedAt *time.Time      `json:"validated_at,omitempty"`
}
