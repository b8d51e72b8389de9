package ingest

import (
	"testing"
	"time"

	"ReplayFM/apperr"
	"ReplayFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func rawPlay(ts, track, artist string, ms int64) model.RawRecord {
	return model.RawRecord{
		Ts:         ts,
		MsPlayed:   ms,
		TrackName:  strPtr(track),
		ArtistName: strPtr(artist),
		AlbumName:  strPtr(artist + " Album"),
	}
}

func TestNormalizeQualifyingRules(t *testing.T) {
	n := NewNormalizer(45000, time.UTC)

	tests := []struct {
		name    string
		record  model.RawRecord
		kept    bool
		skipped int
	}{
		{
			name:   "qualifying play is kept",
			record: rawPlay("2023-01-01T10:00:00Z", "A", "X", 180000),
			kept:   true,
		},
		{
			name: "podcast episode is non-music",
			record: model.RawRecord{
				Ts:          "2023-01-01T10:00:00Z",
				MsPlayed:    180000,
				EpisodeName: strPtr("Some Episode"),
			},
			skipped: 1,
		},
		{
			name: "missing track name",
			record: model.RawRecord{
				Ts:       "2023-01-01T10:00:00Z",
				MsPlayed: 180000,
			},
			skipped: 1,
		},
		{
			name:    "zero duration",
			record:  rawPlay("2023-01-01T10:00:00Z", "A", "X", 0),
			skipped: 1,
		},
		{
			name:    "below minimum play threshold",
			record:  rawPlay("2023-01-01T10:00:00Z", "A", "X", 30000),
			skipped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := n.Normalize("s1", []model.RawRecord{tt.record})
			if tt.kept {
				require.Len(t, result.Events, 1)
				assert.Equal(t, 0, result.Skipped)
			} else {
				assert.Empty(t, result.Events)
				assert.Equal(t, tt.skipped, result.Skipped)
			}
		})
	}
}

func TestNormalizeUnparseableTimestampIsWarning(t *testing.T) {
	n := NewNormalizer(1, time.UTC)

	result := n.Normalize("s1", []model.RawRecord{rawPlay("not-a-timestamp", "A", "X", 60000)})
	assert.Empty(t, result.Events)
	assert.Equal(t, 1, result.Warnings)
	assert.Equal(t, 0, result.Skipped)
}

func TestNormalizeCanonicalEvent(t *testing.T) {
	n := NewNormalizer(45000, time.UTC)

	result := n.Normalize("s1", []model.RawRecord{rawPlay("2023-06-15T23:30:00Z", "Song A", "Artist X", 180000)})
	require.Len(t, result.Events, 1)

	ev := result.Events[0]
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, "Song A", ev.TrackName)
	assert.Equal(t, "Artist X", ev.ArtistName)
	assert.Equal(t, "2023-06-15", ev.Date)
	assert.Equal(t, 2023, ev.Year)
	assert.Equal(t, int64(180000), ev.MsPlayed)
	assert.Equal(t, time.UTC, ev.PlayedAt.Location())
	assert.NotEmpty(t, ev.DedupeKey)
}

func TestNormalizeBackfillsMissingArtistAndAlbum(t *testing.T) {
	n := NewNormalizer(1, time.UTC)

	result := n.Normalize("s1", []model.RawRecord{{
		Ts:        "2023-01-01T10:00:00Z",
		MsPlayed:  60000,
		TrackName: strPtr("Orphan Track"),
	}})
	require.Len(t, result.Events, 1)
	assert.Equal(t, unknownArtist, result.Events[0].ArtistName)
	assert.Equal(t, unknownAlbum, result.Events[0].AlbumName)
}

func TestNormalizeTimezoneBucketing(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	n := NewNormalizer(1, la)

	// 03:30 UTC is still the previous day on the US west coast.
	result := n.Normalize("s1", []model.RawRecord{rawPlay("2023-06-16T03:30:00Z", "A", "X", 60000)})
	require.Len(t, result.Events, 1)
	assert.Equal(t, "2023-06-15", result.Events[0].Date)
	// the stored timestamp itself stays UTC
	assert.Equal(t, time.UTC, result.Events[0].PlayedAt.Location())
}

func TestDedupeKeyDeterministic(t *testing.T) {
	at := time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)

	k1 := DedupeKey(at, "A", "X", 180000)
	k2 := DedupeKey(at, "A", "X", 180000)
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, DedupeKey(at, "A", "X", 180001))
	assert.NotEqual(t, k1, DedupeKey(at, "B", "X", 180000))
	assert.NotEqual(t, k1, DedupeKey(at.Add(time.Second), "A", "X", 180000))
}

func TestParseRecordsRejectsMalformedPayload(t *testing.T) {
	_, err := ParseRecords([]byte(`{"not":"an array"}`))
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	records, err := ParseRecords([]byte(`[{"ts":"2023-01-01T10:00:00Z","ms_played":1000}]`))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
