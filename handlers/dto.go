package handlers

import (
	"time"

	"node-ledger/models"
	"node-ledger/services"
)

// Amounts leave the API as JSON numbers, which is what the web client reads.

type userDTO struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	ReferCode         string    `json:"refer_code"`
	MineBalance       float64   `json:"mine_balance"`
	ReferralBalance   float64   `json:"referral_balance"`
	HasPurchasedNode  bool      `json:"has_purchased_node"`
	HasPurchasedNode4 bool      `json:"has_purchased_node4"`
	CreatedAt         time.Time `json:"created_at"`
}

func toUserDTO(u *models.User) userDTO {
	return userDTO{
		ID:                u.ID,
		Username:          u.Username,
		ReferCode:         u.ReferCode,
		MineBalance:       u.MineBalance.InexactFloat64(),
		ReferralBalance:   u.ReferralBalance.InexactFloat64(),
		HasPurchasedNode:  u.HasPurchasedNode,
		HasPurchasedNode4: u.HasPurchasedNode4,
		CreatedAt:         u.CreatedAt,
	}
}

type tierDTO struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	MiningAmount float64 `json:"mining_amount"`
	DurationDays int     `json:"duration_days"`
	GB           int     `json:"gb"`
}

func toTierDTO(t services.NodeTier) tierDTO {
	return tierDTO{
		Name:         t.Name,
		Price:        t.Price.InexactFloat64(),
		MiningAmount: t.MiningAmount.InexactFloat64(),
		DurationDays: t.DurationDays,
		GB:           t.GB,
	}
}

func tierMap(c *services.Catalog) map[string]tierDTO {
	out := make(map[string]tierDTO)
	for _, t := range c.Tiers() {
		out[t.ID] = toTierDTO(t)
	}
	return out
}

type nodeStatusDTO struct {
	Config       tierDTO    `json:"config"`
	Owned        bool       `json:"owned"`
	Active       bool       `json:"active"`
	Progress     float64    `json:"progress"`
	CanRebuy     bool       `json:"can_rebuy"`
	PurchaseTime *time.Time `json:"purchase_time"`
}

func toNodeStatusDTO(st services.TierStatus) nodeStatusDTO {
	dto := nodeStatusDTO{
		Config:   toTierDTO(st.Tier),
		Active:   st.Active,
		Progress: st.Progress,
		CanRebuy: st.CanRebuy,
	}
	if st.Instance != nil {
		dto.Owned = true
		t := st.Instance.PurchasedAt
		dto.PurchaseTime = &t
	}
	return dto
}

type nodeDTO struct {
	ID              string     `json:"id"`
	NodeID          string     `json:"node_id"`
	Name            string     `json:"name"`
	State           string     `json:"state"`
	Price           float64    `json:"price"`
	MiningAmount    float64    `json:"mining_amount"`
	DurationDays    int        `json:"duration_days"`
	TransactionHash *string    `json:"transaction_hash"`
	PurchaseTime    time.Time  `json:"purchase_time"`
	ActivatedAt     *time.Time `json:"activated_at"`
}

func toNodeDTO(inst *models.NodeInstance, tier services.NodeTier) nodeDTO {
	return nodeDTO{
		ID:              inst.ID,
		NodeID:          inst.TierID,
		Name:            tier.Name,
		State:           string(inst.State),
		Price:           inst.Price.InexactFloat64(),
		MiningAmount:    inst.MiningAmount.InexactFloat64(),
		DurationDays:    inst.DurationDays,
		TransactionHash: inst.TransactionHash,
		PurchaseTime:    inst.PurchasedAt,
		ActivatedAt:     inst.ActivatedAt,
	}
}

type withdrawalDTO struct {
	ID          string    `json:"id"`
	BalanceType string    `json:"balance_type"`
	Amount      float64   `json:"amount"`
	State       string    `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toWithdrawalDTO(w models.WithdrawalRequest) withdrawalDTO {
	return withdrawalDTO{
		ID:          w.ID,
		BalanceType: string(w.BalanceType),
		Amount:      w.Amount.InexactFloat64(),
		State:       string(w.State),
		Reason:      w.Reason,
		CreatedAt:   w.CreatedAt,
	}
}
