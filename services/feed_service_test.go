package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFeed_withoutRedis(t *testing.T) {
	f := newFixture(t)
	feed := NewFeedService(nil, f.ledger)

	entries := feed.Feed(context.Background())
	require.Len(t, entries, 10)
	for _, e := range entries {
		require.GreaterOrEqual(t, e.Amount, 25)
		require.LessOrEqual(t, e.Amount, 10000)
		require.False(t, e.Timestamp.After(epoch))
		require.False(t, e.Timestamp.Before(epoch.Add(-time.Hour)))
	}
}

func TestFeed_cachedInRedis(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	feed := NewFeedService(rdb, f.ledger)
	ctx := context.Background()

	first := feed.Feed(ctx)
	second := feed.Feed(ctx)
	require.Len(t, first, 10)
	for i := range first {
		require.Equal(t, first[i].Amount, second[i].Amount)
		require.True(t, first[i].Timestamp.Equal(second[i].Timestamp))
	}
	require.True(t, mr.Exists(feedKey))

	mr.FastForward(6 * time.Second)
	require.False(t, mr.Exists(feedKey))
	require.Len(t, feed.Feed(ctx), 10)
}
