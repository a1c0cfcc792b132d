package services

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"node-ledger/models"
)

func scenarioTiers() map[string]NodeTier {
	return map[string]NodeTier{
		"tier1": {Name: "Tier 1", Price: decimal.NewFromInt(100), MiningAmount: decimal.NewFromInt(150), DurationDays: 7, GB: 64},
		"tier4": {Name: "Tier 4", Price: decimal.NewFromInt(250), MiningAmount: decimal.NewFromInt(1000), DurationDays: 3, GB: 1024, TopTier: true},
	}
}

func TestScenario_lifecycleReferralAndGates(t *testing.T) {
	f := newFixtureWithTiers(t, scenarioTiers())
	ctx := context.Background()

	a := f.signup(t, "userA", "")
	requireAmount(t, 25, a.MineBalance)

	inst, err := f.nodes.RequestPurchase(ctx, a.ID, "tier1")
	require.NoError(t, err)
	require.Equal(t, models.NodePendingPayment, inst.State)
	ok, err := f.nodes.CanRebuy(ctx, a.ID, "tier1")
	require.NoError(t, err)
	require.False(t, ok)

	inst, err = f.nodes.ConfirmPurchase(ctx, inst.ID, "0xabc")
	require.NoError(t, err)
	require.Equal(t, models.NodeActive, inst.State)
	require.True(t, f.user(t, a.ID).HasPurchasedNode)

	f.clock.Advance(7 * day)
	_, err = f.nodes.Sweep(ctx)
	require.NoError(t, err)
	requireAmount(t, 175, f.user(t, a.ID).MineBalance)

	b := f.signup(t, "userB", a.ReferCode)
	f.activate(t, b.ID, "tier1", "0xb")
	requireAmount(t, 50, f.user(t, a.ID).ReferralBalance)
	summary, err := f.referrals.Summary(ctx, a.ID)
	require.NoError(t, err)
	requireAmount(t, 50, summary.TotalEarned)

	_, err = f.withdrawals.Withdraw(ctx, a.ID, models.BalanceMine, decimal.NewFromInt(10))
	require.True(t, errors.Is(err, ErrBelowMinimum))

	// 30 fails the 50 minimum before the top-tier gate is consulted; 50
	// satisfies balance and minimum and is stopped by the gate.
	req, err := f.withdrawals.Withdraw(ctx, a.ID, models.BalanceReferral, decimal.NewFromInt(30))
	require.Error(t, err)
	require.Equal(t, models.WithdrawalRejected, req.State)
	req, err = f.withdrawals.Withdraw(ctx, a.ID, models.BalanceReferral, decimal.NewFromInt(50))
	require.True(t, errors.Is(err, ErrPrerequisite))
	require.Equal(t, models.WithdrawalRejected, req.State)

	got := f.user(t, a.ID)
	requireAmount(t, 175, got.MineBalance)
	requireAmount(t, 50, got.ReferralBalance)
}
