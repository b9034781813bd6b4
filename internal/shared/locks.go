package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// DocumentLockKey builds the redis key guarding a single business document.
func DocumentLockKey(module, documentID string) string {
	return fmt.Sprintf("ledger:%s:%s:lock", module, documentID)
}

// DocumentLocker serialises event processing per document across processes.
type DocumentLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewDocumentLocker builds a locker on top of an existing redis client.
func NewDocumentLocker(rdb *redis.Client, ttl time.Duration) *DocumentLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DocumentLocker{client: redislock.New(rdb), ttl: ttl}
}

// WithLock runs fn while holding the lock for key. A nil locker runs fn directly.
func (l *DocumentLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return fmt.Errorf("%s: %w", key, ErrBusy)
		}
		return err
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
