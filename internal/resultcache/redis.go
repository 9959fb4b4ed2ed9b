package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const redisKeyPrefix = "dashboard:filter:"

// Redis shares filter results between dashboard replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps client. A non-positive ttl falls back to five minutes.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

// Get reads and decodes the cached ids.
func (r *Redis) Get(ctx context.Context, key string) ([]string, bool, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "resultcache: redis get")
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, false, eris.Wrap(err, "resultcache: decode ids")
	}
	return ids, true, nil
}

// Set stores ids with the configured expiry.
func (r *Redis) Set(ctx context.Context, key string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return eris.Wrap(err, "resultcache: encode ids")
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		return eris.Wrap(err, "resultcache: redis set")
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
