package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"ReplayFM/apperr"
	"ReplayFM/model"
)

// ChunkStore buffers chunks of a logical file until all parts have arrived.
// The production implementation lives in the cache package (Redis hashes);
// tests use an in-memory store.
type ChunkStore interface {
	PutChunk(ctx context.Context, sessionID, fileName string, index int, payload []byte) error
	// GetChunk returns the buffered payload of one chunk, or nil when the
	// index has not arrived yet.
	GetChunk(ctx context.Context, sessionID, fileName string, index int) ([]byte, error)
	CountChunks(ctx context.Context, sessionID, fileName string) (int, error)
	GetAllChunks(ctx context.Context, sessionID, fileName string) (map[int][]byte, error)
	DeleteFile(ctx context.Context, sessionID, fileName string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Assembler reassembles export files that the transport split into chunks.
// Chunks may arrive in any order; the (fileName, chunkIndex, totalChunks)
// triple is enough to put them back together.
type Assembler struct {
	store ChunkStore
}

// NewAssembler creates an assembler over the given chunk store.
func NewAssembler(store ChunkStore) *Assembler {
	return &Assembler{store: store}
}

// Add buffers one chunk and reports how many distinct chunks of the file are
// buffered and whether the file is now complete. Resubmitting a chunk with
// the same content is a no-op; resubmitting an index with different content
// is a conflict, since the file's assembly would be ambiguous.
func (a *Assembler) Add(ctx context.Context, chunk *model.ChunkUpload) (int, bool, error) {
	if chunk.FileName == "" {
		return 0, false, apperr.Validation("chunk is missing a file name")
	}
	if chunk.TotalChunks < 1 {
		return 0, false, apperr.Validation("totalChunks must be at least 1, got %d", chunk.TotalChunks)
	}
	if chunk.ChunkIndex < 0 || chunk.ChunkIndex >= chunk.TotalChunks {
		return 0, false, apperr.Validation("chunkIndex %d out of range for %d chunks", chunk.ChunkIndex, chunk.TotalChunks)
	}

	payload, err := json.Marshal(chunk.Records)
	if err != nil {
		return 0, false, apperr.Validation("chunk records are not serializable: %v", err)
	}

	existing, err := a.store.GetChunk(ctx, chunk.SessionID, chunk.FileName, chunk.ChunkIndex)
	if err != nil {
		return 0, false, fmt.Errorf("failed to check buffered chunk: %w", err)
	}
	if existing != nil && !bytes.Equal(existing, payload) {
		return 0, false, apperr.DataConflict("chunk %d of %s was already buffered with different content",
			chunk.ChunkIndex, chunk.FileName)
	}

	if err := a.store.PutChunk(ctx, chunk.SessionID, chunk.FileName, chunk.ChunkIndex, payload); err != nil {
		return 0, false, fmt.Errorf("failed to buffer chunk: %w", err)
	}

	count, err := a.store.CountChunks(ctx, chunk.SessionID, chunk.FileName)
	if err != nil {
		return 0, false, fmt.Errorf("failed to count buffered chunks: %w", err)
	}
	return count, count >= chunk.TotalChunks, nil
}

// Assemble returns the file's records in chunk-index order and drops the
// buffer. The second return value is the reassembled raw JSON array, kept
// for archiving.
func (a *Assembler) Assemble(ctx context.Context, sessionID, fileName string, totalChunks int) ([]model.RawRecord, []byte, error) {
	buffered, err := a.store.GetAllChunks(ctx, sessionID, fileName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load buffered chunks: %w", err)
	}
	if len(buffered) < totalChunks {
		return nil, nil, apperr.Validation("file %s incomplete: %d of %d chunks buffered", fileName, len(buffered), totalChunks)
	}

	indices := make([]int, 0, len(buffered))
	for idx := range buffered {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	records := make([]model.RawRecord, 0)
	for _, idx := range indices {
		part, err := ParseRecords(buffered[idx])
		if err != nil {
			return nil, nil, fmt.Errorf("chunk %d of %s: %w", idx, fileName, err)
		}
		records = append(records, part...)
	}

	raw, err := json.Marshal(records)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize assembled file %s: %w", fileName, err)
	}

	if err := a.store.DeleteFile(ctx, sessionID, fileName); err != nil {
		return nil, nil, fmt.Errorf("failed to drop chunk buffer of %s: %w", fileName, err)
	}
	return records, raw, nil
}
