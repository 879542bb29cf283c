package playerprofile

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "profile:"

// cachedStore is a read-through Redis cache in front of another Store. Redis failures
// are logged and the backing store is used instead.
type cachedStore struct {
	rdb    *redis.Client
	next   Store
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedStore(rdb *redis.Client, next Store, ttl time.Duration, logger *slog.Logger) Store {
	return &cachedStore{rdb: rdb, next: next, ttl: ttl, logger: logger}
}

func cacheKey(username string) string {
	return cacheKeyPrefix + username
}

func (c *cachedStore) GetByName(ctx context.Context, username string) (*Profile, error) {
	fields, err := c.rdb.HGetAll(ctx, cacheKey(username)).Result()
	if err != nil {
		c.logger.Warn("Profile cache read failed", "username", username, "error", err)
	} else if p, ok := decodeProfile(username, fields); ok {
		return p, nil
	}

	p, err := c.next.GetByName(ctx, username)
	if err != nil {
		return nil, err
	}
	c.put(ctx, p)
	return p, nil
}

func (c *cachedStore) CreateDefault(ctx context.Context, username string) (*Profile, error) {
	p, err := c.next.CreateDefault(ctx, username)
	if err != nil {
		return nil, err
	}
	c.put(ctx, p)
	return p, nil
}

func (c *cachedStore) put(ctx context.Context, p *Profile) {
	key := cacheKey(p.Username)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "rating", p.Rating, "wins", p.Wins)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn("Profile cache write failed", "username", p.Username, "error", err)
	}
}

func decodeProfile(username string, fields map[string]string) (*Profile, bool) {
	if len(fields) == 0 {
		return nil, false
	}
	rating, err := strconv.Atoi(fields["rating"])
	if err != nil {
		return nil, false
	}
	wins, err := strconv.Atoi(fields["wins"])
	if err != nil {
		return nil, false
	}
	return &Profile{Username: username, Rating: rating, Wins: wins}, true
}
