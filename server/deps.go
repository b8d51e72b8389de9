package server

import (
	"context"

	"ReplayFM/cache"
	"ReplayFM/storage"
)

// Adapters binding the package-level cache/storage helpers to the small
// interfaces the core packages depend on.

// minioArchiver satisfies ingest.Archiver and session.ArchivePurger.
type minioArchiver struct{}

func (minioArchiver) ArchiveExport(ctx context.Context, sessionID, fileName string, payload []byte) error {
	return storage.ArchiveExport(ctx, sessionID, fileName, payload)
}

func (minioArchiver) RemoveSessionArchives(ctx context.Context, sessionID string) error {
	return storage.RemoveSessionArchives(ctx, sessionID)
}

// redisStatsCache satisfies session.CachePurger.
type redisStatsCache struct{}

func (redisStatsCache) InvalidateSession(ctx context.Context, sessionID string) error {
	return cache.InvalidateSession(ctx, sessionID)
}
