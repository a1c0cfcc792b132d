package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type NodeState string

const (
	NodePendingPayment NodeState = "pending_payment"
	NodeActive         NodeState = "active"
	NodeCompleted      NodeState = "completed"
)

// NodeInstance is one purchase of a tier by a user. Rows are never deleted.
// Economics are copied from the tier when the purchase is requested.
type NodeInstance struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string          `gorm:"index;not null" json:"user_id"`
	TierID          string          `gorm:"not null" json:"node_id"`
	State           NodeState       `gorm:"type:varchar(32);not null" json:"state"`
	TransactionHash *string         `json:"transaction_hash,omitempty"`
	Price           decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"price"`
	MiningAmount    decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"mining_amount"`
	DurationDays    int             `gorm:"not null" json:"duration_days"`
	PurchasedAt     time.Time       `gorm:"not null" json:"purchased_at"`
	ActivatedAt     *time.Time      `json:"activated_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Duration is the mining period measured from ActivatedAt.
func (n *NodeInstance) Duration() time.Duration {
	return time.Duration(n.DurationDays) * 24 * time.Hour
}

// Unfinished reports whether the instance still blocks a repurchase of its tier.
func (n *NodeInstance) Unfinished() bool {
	return n.State == NodePendingPayment || n.State == NodeActive
}
