// Package cache keeps the most recent refresh cycle in Redis so it can be
// served without hitting the market data provider.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"crypto_tracker/middleware"
	"crypto_tracker/models"
	"crypto_tracker/sink"
)

const SinkName = "redis"

// ErrNoSnapshot is returned by Latest when nothing has been cached yet.
var ErrNoSnapshot = errors.New("no cached snapshot")

// store is the subset of *redis.Client the sink uses.
type store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

type RedisSink struct {
	client  store
	key     string
	ttl     time.Duration
	timeout time.Duration
	breaker *middleware.Breaker
}

// NewRedisSink caches each cycle under key for ttl. Writes are bounded by
// timeout; zero means the caller's deadline only.
func NewRedisSink(client *redis.Client, key string, ttl, timeout time.Duration, breaker *middleware.Breaker) *RedisSink {
	return newRedisSink(client, key, ttl, timeout, breaker)
}

func newRedisSink(client store, key string, ttl, timeout time.Duration, breaker *middleware.Breaker) *RedisSink {
	return &RedisSink{client: client, key: key, ttl: ttl, timeout: timeout, breaker: breaker}
}

func (r *RedisSink) Name() string { return SinkName }

// Persist implements sink.Persister.
func (r *RedisSink) Persist(ctx context.Context, result models.RefreshCycleResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return sink.NewPersistError(SinkName, sink.TransportError, fmt.Errorf("marshal cycle: %w", err))
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	err = r.breaker.Execute(func() error {
		return r.client.Set(ctx, r.key, data, r.ttl).Err()
	})
	if err != nil {
		return sink.NewPersistError(SinkName, classify(err), fmt.Errorf("set %s: %w", r.key, err))
	}
	return nil
}

// Latest returns the last persisted cycle.
func (r *RedisSink) Latest(ctx context.Context) (*models.RefreshCycleResult, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("get %s: %w", r.key, err)
	}

	var result models.RefreshCycleResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal cycle: %w", err)
	}
	return &result, nil
}

func (r *RedisSink) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func classify(err error) sink.ErrorKind {
	msg := err.Error()
	if strings.HasPrefix(msg, "NOAUTH") || strings.HasPrefix(msg, "WRONGPASS") {
		return sink.AuthError
	}
	return sink.TransportError
}
