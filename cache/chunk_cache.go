package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisChunkStore buffers transport chunks of a logical export file in a
// Redis hash (chunk index -> raw payload) until all parts have arrived.
// Buffers expire after ttl so abandoned uploads do not pile up.
type RedisChunkStore struct {
	ttl time.Duration
}

// NewRedisChunkStore creates a chunk store backed by the shared Redis client.
func NewRedisChunkStore(ttl time.Duration) *RedisChunkStore {
	return &RedisChunkStore{ttl: ttl}
}

func chunkKey(sessionID, fileName string) string {
	return fmt.Sprintf("chunks:%s:%s", sessionID, fileName)
}

// PutChunk stores one chunk payload under its index.
func (s *RedisChunkStore) PutChunk(ctx context.Context, sessionID, fileName string, index int, payload []byte) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := chunkKey(sessionID, fileName)
	pipe := RedisClient.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(index), payload)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store chunk %d of %s: %w", index, fileName, err)
	}
	return nil
}

// GetChunk returns one buffered chunk payload, or nil when the index has not
// arrived yet.
func (s *RedisChunkStore) GetChunk(ctx context.Context, sessionID, fileName string, index int) ([]byte, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	raw, err := RedisClient.HGet(ctx, chunkKey(sessionID, fileName), strconv.Itoa(index)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk %d of %s: %w", index, fileName, err)
	}
	return raw, nil
}

// CountChunks returns how many distinct chunks of the file have arrived.
func (s *RedisChunkStore) CountChunks(ctx context.Context, sessionID, fileName string) (int, error) {
	if RedisClient == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}

	n, err := RedisClient.HLen(ctx, chunkKey(sessionID, fileName)).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to count chunks of %s: %w", fileName, err)
	}
	return int(n), nil
}

// GetAllChunks returns every buffered chunk payload keyed by chunk index.
func (s *RedisChunkStore) GetAllChunks(ctx context.Context, sessionID, fileName string) (map[int][]byte, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	raw, err := RedisClient.HGetAll(ctx, chunkKey(sessionID, fileName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks of %s: %w", fileName, err)
	}

	chunks := make(map[int][]byte, len(raw))
	for field, payload := range raw {
		idx, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("unexpected chunk field %q for %s: %w", field, fileName, err)
		}
		chunks[idx] = []byte(payload)
	}
	return chunks, nil
}

// DeleteFile drops the buffer of one logical file.
func (s *RedisChunkStore) DeleteFile(ctx context.Context, sessionID, fileName string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	if err := RedisClient.Del(ctx, chunkKey(sessionID, fileName)).Err(); err != nil {
		return fmt.Errorf("failed to delete chunk buffer of %s: %w", fileName, err)
	}
	return nil
}

// DeleteSession drops every chunk buffer belonging to a session.
func (s *RedisChunkStore) DeleteSession(ctx context.Context, sessionID string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	pattern := fmt.Sprintf("chunks:%s:*", sessionID)
	iter := RedisClient.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := RedisClient.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete chunk buffer %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan chunk buffers of session %s: %w", sessionID, err)
	}
	return nil
}
