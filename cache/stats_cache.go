package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Aggregate read results are cached per session and invalidated whenever the
// session's event set changes (ingestion, recompute, clear).

const statsCacheTTL = 10 * time.Minute

// DailySeriesKey is the cache key for a session's daily totals series.
func DailySeriesKey(sessionID string) string {
	return fmt.Sprintf("stats:%s:daily", sessionID)
}

// AllTimeStatsKey is the cache key for a session's top-N rankings.
func AllTimeStatsKey(sessionID string) string {
	return fmt.Sprintf("stats:%s:alltime", sessionID)
}

// GetJSON loads a cached value into dest. Returns false on a cache miss.
func GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if RedisClient == nil {
		return false, fmt.Errorf("Redis client not initialized")
	}

	raw, err := RedisClient.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores a value under key with the stats TTL.
func SetJSON(ctx context.Context, key string, val interface{}) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to encode cache key %s: %w", key, err)
	}

	if err := RedisClient.Set(ctx, key, raw, statsCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// InvalidateSession drops every cached aggregate of a session.
func InvalidateSession(ctx context.Context, sessionID string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	if err := RedisClient.Del(ctx, DailySeriesKey(sessionID), AllTimeStatsKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate stats cache for session %s: %w", sessionID, err)
	}
	return nil
}
