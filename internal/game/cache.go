package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/castlegate/chess-arena/internal/domain"
)

// SnapshotCache keeps the latest state of live games so reads do not
// hit the database on every event. Get returns (nil, nil) on a miss.
type SnapshotCache interface {
	Get(ctx context.Context, id string) (*domain.Game, error)
	Set(ctx context.Context, game *domain.Game) error
	Del(ctx context.Context, id string) error
}

const snapshotKeyPrefix = "arena:game:"

type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) SnapshotCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisCache{rdb: rdb, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, id string) (*domain.Game, error) {
	raw, err := c.rdb.Get(ctx, snapshotKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var game domain.Game
	if err := json.Unmarshal(raw, &game); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &game, nil
}

func (c *redisCache) Set(ctx context.Context, game *domain.Game) error {
	if game == nil || game.ID == "" {
		return fmt.Errorf("nil game snapshot")
	}
	raw, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, snapshotKeyPrefix+game.ID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *redisCache) Del(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, snapshotKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return nil
}
