package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

const defaultStatsKey = "relay:stats"

// StatsCache implements port.StatsCache on Redis. Aggregates are stored as
// one JSON value under a single key with a TTL.
type StatsCache struct {
	client *red.Client
	key    string
}

// NewStatsCache constructs a stats cache with the provided Redis client and
// cache key.
func NewStatsCache(client *red.Client, key string) *StatsCache {
	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultStatsKey
	}

	return &StatsCache{
		client: client,
		key:    key,
	}
}

// Get returns the cached aggregate, or repository.ErrNotFound on a miss.
func (c *StatsCache) Get(ctx context.Context) (*domain.Stats, error) {
	payload, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get cached stats: %w", err)
	}

	var stats domain.Stats
	if err := json.Unmarshal(payload, &stats); err != nil {
		// A corrupt value is treated as a miss so the caller recomputes.
		return nil, repository.ErrNotFound
	}

	return &stats, nil
}

// Set stores the aggregate for the given TTL.
func (c *StatsCache) Set(ctx context.Context, stats domain.Stats, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	if err := c.client.Set(ctx, c.key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("set cached stats: %w", err)
	}

	return nil
}

// Invalidate drops the cached aggregate.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("invalidate cached stats: %w", err)
	}

	return nil
}
