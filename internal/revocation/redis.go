package revocation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"authcore.org/internal/obs"
)

const defaultPrefix = "auth:revoked:"

type redisStore struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedis connects a Redis-backed Store from a URL such as
// redis://:pass@host:6379/0. An empty prefix falls back to "auth:revoked:".
func OpenRedis(redisURL, prefix string) (Store, error) {
	if prefix == "" {
		prefix = defaultPrefix
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail fast on startup.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &redisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *redisStore) key(tokenValue string) string {
	return s.prefix + fingerprint(tokenValue)
}

func (s *redisStore) Revoke(ctx context.Context, tokenValue string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, s.key(tokenValue), "1", ttl).Err()
}

func (s *redisStore) IsRevoked(ctx context.Context, tokenValue string) bool {
	n, err := s.rdb.Exists(ctx, s.key(tokenValue)).Result()
	if err != nil {
		// Lookup failures count as absence; log so operators can see a
		// degraded revocation store.
		obs.Log(map[string]any{
			"level": "error",
			"msg":   "revocation lookup failed",
			"err":   err.Error(),
		})
		return false
	}
	return n > 0
}

func (s *redisStore) Close() error { return s.rdb.Close() }
