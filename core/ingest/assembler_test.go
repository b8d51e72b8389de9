package ingest

import (
	"context"
	"fmt"
	"testing"

	"ReplayFM/apperr"
	"ReplayFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memChunkStore is an in-memory ChunkStore for tests.
type memChunkStore struct {
	files map[string]map[int][]byte
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{files: make(map[string]map[int][]byte)}
}

func (s *memChunkStore) key(sessionID, fileName string) string {
	return sessionID + "/" + fileName
}

func (s *memChunkStore) PutChunk(_ context.Context, sessionID, fileName string, index int, payload []byte) error {
	k := s.key(sessionID, fileName)
	if s.files[k] == nil {
		s.files[k] = make(map[int][]byte)
	}
	s.files[k][index] = payload
	return nil
}

func (s *memChunkStore) GetChunk(_ context.Context, sessionID, fileName string, index int) ([]byte, error) {
	return s.files[s.key(sessionID, fileName)][index], nil
}

func (s *memChunkStore) CountChunks(_ context.Context, sessionID, fileName string) (int, error) {
	return len(s.files[s.key(sessionID, fileName)]), nil
}

func (s *memChunkStore) GetAllChunks(_ context.Context, sessionID, fileName string) (map[int][]byte, error) {
	return s.files[s.key(sessionID, fileName)], nil
}

func (s *memChunkStore) DeleteFile(_ context.Context, sessionID, fileName string) error {
	delete(s.files, s.key(sessionID, fileName))
	return nil
}

func (s *memChunkStore) DeleteSession(_ context.Context, sessionID string) error {
	for k := range s.files {
		if len(k) > len(sessionID) && k[:len(sessionID)] == sessionID {
			delete(s.files, k)
		}
	}
	return nil
}

func chunkOf(file string, index, total int, tracks ...string) *model.ChunkUpload {
	records := make([]model.RawRecord, 0, len(tracks))
	for i, track := range tracks {
		records = append(records, rawPlay(fmt.Sprintf("2023-01-01T10:%02d:00Z", i), track, "X", 60000))
	}
	return &model.ChunkUpload{
		SessionID:   "s1",
		FileName:    file,
		ChunkIndex:  index,
		TotalChunks: total,
		Records:     records,
	}
}

func TestAssemblerOutOfOrderChunks(t *testing.T) {
	ctx := context.Background()
	a := NewAssembler(newMemChunkStore())

	buffered, complete, err := a.Add(ctx, chunkOf("history.json", 2, 3, "C"))
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 1, buffered)

	buffered, complete, err = a.Add(ctx, chunkOf("history.json", 0, 3, "A"))
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 2, buffered)

	_, complete, err = a.Add(ctx, chunkOf("history.json", 1, 3, "B"))
	require.NoError(t, err)
	assert.True(t, complete)

	records, raw, err := a.Assemble(ctx, "s1", "history.json", 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.NotEmpty(t, raw)

	// index order, not arrival order
	assert.Equal(t, "A", *records[0].TrackName)
	assert.Equal(t, "B", *records[1].TrackName)
	assert.Equal(t, "C", *records[2].TrackName)
}

func TestAssemblerResubmittedChunkDoesNotDouble(t *testing.T) {
	ctx := context.Background()
	a := NewAssembler(newMemChunkStore())

	_, _, err := a.Add(ctx, chunkOf("history.json", 0, 2, "A"))
	require.NoError(t, err)

	// same chunk again with identical content: a no-op, not an append
	buffered, complete, err := a.Add(ctx, chunkOf("history.json", 0, 2, "A"))
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 1, buffered)

	_, complete, err = a.Add(ctx, chunkOf("history.json", 1, 2, "B"))
	require.NoError(t, err)
	assert.True(t, complete)

	records, _, err := a.Assemble(ctx, "s1", "history.json", 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestAssemblerResubmittedChunkWithDifferentContent(t *testing.T) {
	ctx := context.Background()
	a := NewAssembler(newMemChunkStore())

	_, _, err := a.Add(ctx, chunkOf("history.json", 0, 2, "A"))
	require.NoError(t, err)

	// same index, different records: the file would be ambiguous
	_, _, err = a.Add(ctx, chunkOf("history.json", 0, 2, "B"))
	assert.True(t, apperr.IsConflict(err))
}

func TestAssemblerValidation(t *testing.T) {
	ctx := context.Background()
	a := NewAssembler(newMemChunkStore())

	_, _, err := a.Add(ctx, chunkOf("", 0, 1, "A"))
	assert.True(t, apperr.IsValidation(err))

	_, _, err = a.Add(ctx, chunkOf("f.json", 0, 0, "A"))
	assert.True(t, apperr.IsValidation(err))

	_, _, err = a.Add(ctx, chunkOf("f.json", 3, 2, "A"))
	assert.True(t, apperr.IsValidation(err))
}

func TestAssembleIncompleteFileFails(t *testing.T) {
	ctx := context.Background()
	a := NewAssembler(newMemChunkStore())

	_, _, err := a.Add(ctx, chunkOf("f.json", 0, 2, "A"))
	require.NoError(t, err)

	_, _, err = a.Assemble(ctx, "s1", "f.json", 2)
	assert.True(t, apperr.IsValidation(err))
}

func TestAssembleDropsBuffer(t *testing.T) {
	ctx := context.Background()
	store := newMemChunkStore()
	a := NewAssembler(store)

	_, _, err := a.Add(ctx, chunkOf("f.json", 0, 1, "A"))
	require.NoError(t, err)

	_, _, err = a.Assemble(ctx, "s1", "f.json", 1)
	require.NoError(t, err)

	n, err := store.CountChunks(ctx, "s1", "f.json")
	require.NoError(t, err)
	assert.Zero(t, n)
}
