package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/token"
)

// DefaultPrefix is prepended to every redis key.
const DefaultPrefix = "authgate:token:"

// Redis is a Store shared between several instances. Redis expires the keys,
// the TTL is the remaining validity of the cached token.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis creates a Redis store. An empty prefix uses DefaultPrefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Redis{client: client, prefix: prefix, now: time.Now}
}

func (r *Redis) key(tok string) string {
	return r.prefix + token.Fingerprint(tok)
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, tok string) (string, bool) {
	userID, err := r.client.Get(ctx, r.key(tok)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("token cache lookup failed")
		}

		return "", false
	}

	return userID, true
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, tok, userID string, expiresAt time.Time) {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return
	}

	if err := r.client.Set(ctx, r.key(tok), userID, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("token cache write failed")
	}
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, tok string) {
	if err := r.client.Del(ctx, r.key(tok)).Err(); err != nil {
		log.Warn().Err(err).Msg("token cache eviction failed")
	}
}
