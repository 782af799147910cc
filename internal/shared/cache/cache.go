package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func ConnectRedis(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

// DrawLock serializa a liquidação de um sorteio entre workers concorrentes.
// SETNX com TTL: se a chave já existe, outro worker está liquidando.
type DrawLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDrawLock(rdb *redis.Client, ttl time.Duration) *DrawLock {
	return &DrawLock{rdb: rdb, ttl: ttl}
}

func (l *DrawLock) Acquire(ctx context.Context, drawID string) (bool, error) {
	return l.rdb.SetNX(ctx, "settle:draw:"+drawID, "1", l.ttl).Result()
}

func (l *DrawLock) Unlock(ctx context.Context, drawID string) error {
	return l.rdb.Del(ctx, "settle:draw:"+drawID).Err()
}
