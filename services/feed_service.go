package services

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	feedKey   = "node-ledger:feed:withdrawals"
	feedSize  = 10
	feedTTL   = 5 * time.Second
	feedMinTR = 25
	feedMaxTR = 10000
)

// FeedEntry is one synthetic withdrawal shown on the landing page.
type FeedEntry struct {
	Amount    int       `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// FeedService produces the social-proof withdrawal feed. The entries are
// random and unrelated to real withdrawals. With Redis configured one batch
// is shared by all replicas for feedTTL.
type FeedService struct {
	redis *redis.Client
	clock func() time.Time

	mu   sync.Mutex
	rand *rand.Rand
}

func NewFeedService(rdb *redis.Client, ledger *Ledger) *FeedService {
	return &FeedService{
		redis: rdb,
		clock: ledger.Now,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *FeedService) Feed(ctx context.Context) []FeedEntry {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, feedKey).Bytes(); err == nil {
			var out []FeedEntry
			if json.Unmarshal(cached, &out) == nil {
				return out
			}
		} else if err != redis.Nil {
			log.WithError(err).Warn("[FEED] redis read failed, generating fresh feed")
		}
	}

	out := s.generate()

	if s.redis != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := s.redis.Set(ctx, feedKey, data, feedTTL).Err(); err != nil {
				log.WithError(err).Warn("[FEED] redis write failed")
			}
		}
	}
	return out
}

func (s *FeedService) generate() []FeedEntry {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FeedEntry, 0, feedSize)
	for i := 0; i < feedSize; i++ {
		out = append(out, FeedEntry{
			Amount:    feedMinTR + s.rand.Intn(feedMaxTR-feedMinTR+1),
			Timestamp: now.Add(-time.Duration(s.rand.Intn(3601)) * time.Second),
		})
	}
	return out
}
