package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"history-ranking-service/internal/domain"
)

// IdentityResolver is the backing lookup the cache wraps.
type IdentityResolver interface {
	ResolveDisplayNames(ctx context.Context, ids []domain.AccountID) (map[domain.AccountID]domain.DisplayHandle, error)
}

// IdentityCache keeps resolved display handles in Redis (identity:{accountID} -> handle)
// and only asks the backing resolver for ids it has not seen recently.
type IdentityCache struct {
	client *redis.Client
	next   IdentityResolver
	ttl    time.Duration
}

func NewIdentityCache(client *redis.Client, next IdentityResolver, ttl time.Duration) *IdentityCache {
	return &IdentityCache{client: client, next: next, ttl: ttl}
}

func (c *IdentityCache) ResolveDisplayNames(ctx context.Context, ids []domain.AccountID) (map[domain.AccountID]domain.DisplayHandle, error) {
	out := make(map[domain.AccountID]domain.DisplayHandle, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.key(id))
	}
	missing := ids
	if values, err := c.client.MGet(ctx, keys...).Result(); err == nil {
		missing = make([]domain.AccountID, 0, len(ids))
		for i, v := range values {
			if s, ok := v.(string); ok && s != "" {
				out[ids[i]] = domain.DisplayHandle(s)
				continue
			}
			missing = append(missing, ids[i])
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	resolved, err := c.next.ResolveDisplayNames(ctx, missing)
	if err != nil {
		return nil, err
	}
	pipe := c.client.Pipeline()
	for id, handle := range resolved {
		out[id] = handle
		pipe.Set(ctx, c.key(id), string(handle), c.ttl)
	}
	_, _ = pipe.Exec(ctx)
	return out, nil
}

func (c *IdentityCache) key(id domain.AccountID) string {
	return "identity:" + string(id)
}
