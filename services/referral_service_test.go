package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"node-ledger/models"
)

func TestReferral_validatedOnFirstActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.signup(t, "alice", "")
	b := f.signup(t, "bobby", a.ReferCode)
	require.NotNil(t, b.ReferredBy)
	require.Equal(t, a.ID, *b.ReferredBy)

	summary, err := f.referrals.Summary(ctx, a.ID)
	require.NoError(t, err)
	require.Empty(t, summary.ValidReferrals)
	require.Len(t, summary.PendingReferrals, 1)
	require.Equal(t, "bobby", summary.PendingReferrals[0].Username)
	require.False(t, summary.PendingReferrals[0].IsValid)
	requireAmount(t, 0, summary.TotalEarned)

	f.activate(t, b.ID, "node1", "0xabc")

	requireAmount(t, 50, f.user(t, a.ID).ReferralBalance)
	summary, err = f.referrals.Summary(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, summary.ValidReferrals, 1)
	require.Empty(t, summary.PendingReferrals)
	require.True(t, summary.ValidReferrals[0].IsValid)
	requireAmount(t, 50, summary.TotalEarned)
	require.Equal(t, a.ReferCode, summary.ReferCode)

	// further activations by the referred user never pay again
	f.activate(t, b.ID, "node4", "0xdef")
	ref, err := f.referrals.OnNodeActivated(ctx, b.ID)
	require.NoError(t, err)
	require.Nil(t, ref)
	requireAmount(t, 50, f.user(t, a.ID).ReferralBalance)

	var stored models.Referral
	require.NoError(t, f.db.Where("referred_id = ?", b.ID).First(&stored).Error)
	require.Equal(t, models.ReferralValid, stored.State)
	require.NotNil(t, stored.ValidatedAt)
}

func TestReferral_badCodesAreIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.signup(t, "carol", "NOPE1234")
	require.Nil(t, u.ReferredBy)

	var count int64
	require.NoError(t, f.db.Model(&models.Referral{}).Count(&count).Error)
	require.Zero(t, count)

	ref, err := f.referrals.OnNodeActivated(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, ref)
}

func TestReferral_ownCodeIgnored(t *testing.T) {
	f := newFixture(t)
	u := f.signup(t, "carol", "")

	ref, err := f.referrals.RegisterReferral(f.db, u, u.ReferCode)
	require.NoError(t, err)
	require.Nil(t, ref)
}

func TestReferral_pendingUntilActivationNotRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.signup(t, "alice", "")
	b := f.signup(t, "bobby", a.ReferCode)

	_, err := f.nodes.RequestPurchase(ctx, b.ID, "node2")
	require.NoError(t, err)

	summary, err := f.referrals.Summary(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, summary.PendingReferrals, 1)
	requireAmount(t, 0, f.user(t, a.ID).ReferralBalance)
}
