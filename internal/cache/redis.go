package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/clinical-case-trainer/internal/domain"
)

const caseKeyPrefix = "case_trainer:case:"

// cachedCase wraps a case with its caching metadata
type cachedCase struct {
	Data      *domain.Case `json:"data"`
	CachedAt  time.Time    `json:"cached_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// RedisCache stores cases in Redis behind a circuit breaker so that an
// unavailable Redis degrades to direct database reads.
type RedisCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	logger  *logrus.Logger
}

// NewRedisCache connects to the Redis instance named by config.RedisURL
func NewRedisCache(config domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, config.DefaultTTL, logger), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-case-cache",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &RedisCache{
		client:  client,
		breaker: breaker,
		ttl:     ttl,
		logger:  logger,
	}
}

// GetCase retrieves a cached case. Corrupted or expired entries are removed
// and reported as a miss.
func (r *RedisCache) GetCase(ctx context.Context, caseID string) (*domain.Case, bool, error) {
	key := caseKey(caseID)

	result, err := r.breaker.Execute(func() (interface{}, error) {
		val, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return val, err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get case cache: %w", err)
	}

	val := result.(string)
	if val == "" {
		return nil, false, nil
	}

	var cached cachedCase
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Data == nil {
		r.client.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		r.client.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetCase caches c for the configured TTL
func (r *RedisCache) SetCase(ctx context.Context, c *domain.Case) error {
	now := time.Now()
	payload, err := json.Marshal(cachedCase{
		Data:      c,
		CachedAt:  now,
		ExpiresAt: now.Add(r.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal case cache data: %w", err)
	}

	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, caseKey(c.CaseID), payload, r.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set case cache: %w", err)
	}
	return nil
}

// Invalidate removes a cached case
func (r *RedisCache) Invalidate(ctx context.Context, caseID string) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Del(ctx, caseKey(caseID)).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate case cache: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func caseKey(caseID string) string {
	return caseKeyPrefix + caseID
}
