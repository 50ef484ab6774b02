package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/oggyb/moviematch/internal/config"
)

const (
	seenTTL        = 24 * time.Hour
	preferencesTTL = time.Hour
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// KeyForSeen is the set of movie ids already decided within a recommendation session.
func (c *RedisCache) KeyForSeen(sessionID string) string {
	return fmt.Sprintf("rec:seen:%s", sessionID)
}

// KeyForPreferences holds the JSON-encoded preference snapshot of a user.
func (c *RedisCache) KeyForPreferences(userID string) string {
	return fmt.Sprintf("prefs:%s", userID)
}

// StoreSeen writes movieIDs into the seen set and refreshes its TTL.
func (c *RedisCache) StoreSeen(ctx context.Context, sessionID string, movieIDs ...int64) error {
	if len(movieIDs) == 0 {
		return nil
	}
	key := c.KeyForSeen(sessionID)
	members := make([]any, 0, len(movieIDs))
	for _, id := range movieIDs {
		members = append(members, id)
	}
	pipe := c.Client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, seenTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// AppendSeen adds movieIDs only when the set is already cached. A missing
// set is rebuilt in full from the database on the next read, so a partial
// set must never be created here.
func (c *RedisCache) AppendSeen(ctx context.Context, sessionID string, movieIDs ...int64) error {
	exists, err := c.Client.Exists(ctx, c.KeyForSeen(sessionID)).Result()
	if err != nil || exists == 0 {
		return err
	}
	return c.StoreSeen(ctx, sessionID, movieIDs...)
}

// GetSeen returns the decided movie ids. ok is false on a cache miss, in
// which case the caller rebuilds the set from the database.
func (c *RedisCache) GetSeen(ctx context.Context, sessionID string) (ids []int64, ok bool, err error) {
	key := c.KeyForSeen(sessionID)
	exists, err := c.Client.Exists(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if exists == 0 {
		return nil, false, nil // cache miss
	}
	vals, err := c.Client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	ids = make([]int64, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("seen set %s: %w", key, err)
		}
		ids = append(ids, id)
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, key, seenTTL).Err()
	return ids, true, nil
}

// SetPreferences caches v as JSON under the user's preference key.
func (c *RedisCache) SetPreferences(ctx context.Context, userID string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, c.KeyForPreferences(userID), raw, preferencesTTL).Err()
}

// GetPreferences decodes the cached snapshot into dst. ok is false on a miss.
func (c *RedisCache) GetPreferences(ctx context.Context, userID string, dst any) (ok bool, err error) {
	raw, err := c.Client.Get(ctx, c.KeyForPreferences(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// InvalidatePreferences drops the cached snapshot after a model update.
func (c *RedisCache) InvalidatePreferences(ctx context.Context, userID string) error {
	return c.Del(ctx, c.KeyForPreferences(userID))
}
