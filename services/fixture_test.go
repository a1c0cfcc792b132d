package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"node-ledger/models"
	"node-ledger/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type fixture struct {
	db          *gorm.DB
	clock       *clockwork.FakeClock
	notifier    *recordingNotifier
	ledger      *Ledger
	catalog     *Catalog
	referrals   *ReferralService
	nodes       *NodeService
	purchases   *PurchaseService
	withdrawals *WithdrawalService
	auth        *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithTiers(t, DefaultTiers())
}

func newFixtureWithTiers(t *testing.T, tiers map[string]NodeTier) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	clock := clockwork.NewFakeClockAt(epoch)
	notifier := &recordingNotifier{}

	catalog, err := NewCatalog(tiers)
	require.NoError(t, err)

	ledger := NewLedger(db, clock)
	referrals := NewReferralService(ledger, DefaultReferralBonus)
	nodes := NewNodeService(ledger, catalog, referrals, notifier, 24*time.Hour)

	return &fixture{
		db:          db,
		clock:       clock,
		notifier:    notifier,
		ledger:      ledger,
		catalog:     catalog,
		referrals:   referrals,
		nodes:       nodes,
		purchases:   NewPurchaseService(nodes, catalog, OptimisticOracle{}, time.Second),
		withdrawals: NewWithdrawalService(ledger, notifier),
		auth:        NewAuthService(ledger, referrals, "test-secret").WithBcryptCost(bcrypt.MinCost),
	}
}

func (f *fixture) signup(t *testing.T, username, referCode string) *models.User {
	t.Helper()
	u, _, err := f.auth.Signup(context.Background(), username, "secret123", referCode)
	require.NoError(t, err)
	return u
}

func (f *fixture) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := f.ledger.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

// activate buys and confirms tierID for userID.
func (f *fixture) activate(t *testing.T, userID, tierID, hash string) *models.NodeInstance {
	t.Helper()
	ctx := context.Background()
	inst, err := f.nodes.RequestPurchase(ctx, userID, tierID)
	require.NoError(t, err)
	inst, err = f.nodes.ConfirmPurchase(ctx, inst.ID, hash)
	require.NoError(t, err)
	return inst
}

func (f *fixture) setBalance(t *testing.T, userID string, bt models.BalanceType, amount int64) {
	t.Helper()
	column := "mine_balance"
	if bt == models.BalanceReferral {
		column = "referral_balance"
	}
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", userID).
		Update(column, decimal.NewFromInt(amount)).Error)
}

func requireAmount(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got)
}
