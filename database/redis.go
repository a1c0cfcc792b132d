package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ConnectRedis returns nil without error when addr is empty; Redis is optional
// and only backs the sweep lock and the feed cache.
func ConnectRedis(addr, password string) (*redis.Client, error) {
	if addr == "" {
		log.Info("REDIS_ADDR not set, running without Redis")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	log.Info("Connected to Redis")
	return rdb, nil
}
