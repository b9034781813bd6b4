package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

const cacheNamespace = "ledger:reports"

// Cache wraps Redis based caching. Keys embed the journal watermark and the
// chart version, so a new posting or an account edit makes every older key
// unreachable instead of requiring a purge.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// BuildKey composes the cache key for a report at watermark.
func BuildKey(watermark int64, parts ...string) string {
	return fmt.Sprintf("%s:%s:%d", cacheNamespace, strings.Join(parts, ":"), watermark)
}

// ChartVersion digests the chart of accounts. Any created, renamed or retyped
// account changes the result.
func ChartVersion(accounts []accounting.Account) string {
	digest := xxhash.New()
	for _, a := range accounts {
		_, _ = fmt.Fprintf(digest, "%d|%s|%s|%s\n", a.ID, a.Code, a.Name, a.Type)
	}
	return fmt.Sprintf("%016x", digest.Sum64())
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
