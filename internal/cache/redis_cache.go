package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"

	"stationpos/backend/internal/domain"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisSearchCache struct {
	client *redis.Client
}

func NewRedisSearchCache(client *redis.Client) *RedisSearchCache {
	return &RedisSearchCache{client: client}
}

func (c *RedisSearchCache) Generation(ctx context.Context) (uint64, error) {
	gen, err := c.client.Get(ctx, searchGenerationKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Invalidate is shared by every instance on the same Redis.
func (c *RedisSearchCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, searchGenerationKey).Err()
}

func (c *RedisSearchCache) Get(ctx context.Context, key string) ([]domain.Article, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var articles []domain.Article
	if err := json.Unmarshal([]byte(val), &articles); err != nil {
		return nil, false, err
	}
	return articles, true, nil
}

func (c *RedisSearchCache) Set(ctx context.Context, key string, articles []domain.Article, ttl time.Duration) error {
	if articles == nil {
		return nil
	}
	payload, err := json.Marshal(articles)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

// RedisSubmitGuard extends the submission guard across server instances.
type RedisSubmitGuard struct {
	locker *redislock.Client
	ttl    time.Duration
}

func NewRedisSubmitGuard(client *redis.Client, ttl time.Duration) *RedisSubmitGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisSubmitGuard{locker: redislock.New(client), ttl: ttl}
}

func (g *RedisSubmitGuard) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := g.locker.Obtain(ctx, "submit:"+key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrSubmitInFlight
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// a fresh context: the request context may already be done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}
