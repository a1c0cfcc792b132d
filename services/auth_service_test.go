package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, token, err := f.auth.Signup(ctx, "  alice ", "secret123", "")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.Len(t, u.ReferCode, 8)
	require.Equal(t, strings.ToUpper(u.ReferCode), u.ReferCode)
	requireAmount(t, 25, u.MineBalance)
	requireAmount(t, 0, u.ReferralBalance)
	require.NotEqual(t, "secret123", u.PasswordHash)

	id, err := f.auth.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, u.ID, id)

	_, _, err = f.auth.Signup(ctx, "alice", "another1", "")
	require.True(t, errors.Is(err, ErrUsernameTaken))

	_, _, err = f.auth.Signup(ctx, "al", "secret123", "")
	require.True(t, errors.Is(err, ErrInvalidInput))
	_, _, err = f.auth.Signup(ctx, "albert", "123", "")
	require.True(t, errors.Is(err, ErrInvalidInput))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "alice", "")

	got, token, err := f.auth.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.NotEmpty(t, token)

	_, _, err = f.auth.Login(ctx, "alice", "wrong-pass")
	require.True(t, errors.Is(err, ErrInvalidCredentials))
	_, _, err = f.auth.Login(ctx, "nobody", "secret123")
	require.True(t, errors.Is(err, ErrInvalidCredentials))

	p, err := f.auth.Profile(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", p.Username)
}

func TestParseToken_expiryAndTampering(t *testing.T) {
	f := newFixture(t)
	token, err := f.auth.IssueToken("user-1")
	require.NoError(t, err)

	f.clock.Advance(7*24*time.Hour - time.Minute)
	id, err := f.auth.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", id)

	f.clock.Advance(2 * time.Minute)
	_, err = f.auth.ParseToken(token)
	require.True(t, errors.Is(err, ErrTokenExpired))

	other := NewAuthService(f.ledger, f.referrals, "other-secret")
	forged, err := other.IssueToken("user-1")
	require.NoError(t, err)
	_, err = f.auth.ParseToken(forged)
	require.True(t, errors.Is(err, ErrInvalidToken))

	_, err = f.auth.ParseToken("not-a-jwt")
	require.True(t, errors.Is(err, ErrInvalidToken))
}
