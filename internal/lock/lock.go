// Package lock provides the per-supplier guard taken around settlement and
// unsettlement so that one supplier's balance chain is rewritten by a single
// caller at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

var ErrBusy = errors.New("lock is held by another caller")

type Guard interface {
	// Acquire takes the named lock without waiting. The returned release
	// function must be called once the guarded work is finished.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type NoopGuard struct{}

func (NoopGuard) Acquire(_ context.Context, _ string) (func(), error) {
	return func() {}, nil
}

type RedisGuard struct {
	locker *redislock.Client
	ttl    time.Duration
	onFail func(key string, err error)
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisGuard{locker: redislock.New(client), ttl: ttl}
}

// OnReleaseError registers a callback for locks that could not be released.
func (g *RedisGuard) OnReleaseError(fn func(key string, err error)) {
	g.onFail = fn
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := g.locker.Obtain(ctx, key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, key)
	}
	if err != nil {
		return nil, err
	}

	return func() {
		// The caller's context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) && g.onFail != nil {
			g.onFail(key, err)
		}
	}, nil
}
