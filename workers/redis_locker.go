package workers

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var errLockHeld = errors.New("lock held by another instance")

// unlockScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another replica is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a gocron distributed locker backed by SET NX PX.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// SweepLockTTL bounds how long a crashed holder blocks other replicas. It
// spans several intervals so a slow sweep keeps its lock; gocron releases the
// lock as soon as the job returns.
func SweepLockTTL(interval time.Duration) time.Duration {
	return 3 * interval
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "node-ledger:lock:", ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "acquire redis lock")
	}
	if !ok {
		return nil, errLockHeld
	}
	return &redisLock{rdb: l.rdb, key: l.prefix + key, token: token}, nil
}

type redisLock struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *redisLock) Unlock(ctx context.Context) error {
	if err := unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return errors.Wrap(err, "release redis lock")
	}
	return nil
}
