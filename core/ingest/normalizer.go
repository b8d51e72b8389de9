package ingest

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ReplayFM/apperr"
	"ReplayFM/model"
)

const (
	unknownArtist = "Unknown Artist"
	unknownAlbum  = "Unknown Album"
)

// Normalizer turns raw export records into canonical PlayEvents, dropping
// everything that does not qualify for aggregation.
type Normalizer struct {
	minPlayMs int64
	loc       *time.Location
}

// NewNormalizer creates a normalizer. minPlayMs is the qualifying threshold
// (the export format logs plays as short as a skip); loc buckets plays into
// calendar days.
func NewNormalizer(minPlayMs int64, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{minPlayMs: minPlayMs, loc: loc}
}

// ParseRecords decodes one chunk payload. A payload that is not a JSON array
// of records rejects the whole chunk with a validation error.
func ParseRecords(payload []byte) ([]model.RawRecord, error) {
	var records []model.RawRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, apperr.Validation("chunk payload is not a record array: %v", err)
	}
	return records, nil
}

// NormalizeResult carries the outcome of normalizing one record set.
type NormalizeResult struct {
	Events   []*model.PlayEvent
	Skipped  int // records filtered by the qualifying rules
	Warnings int // records with unparseable fields
}

// Normalize converts records into canonical events for a session.
//
// A record qualifies when it is a music play (no episode metadata), has a
// track name, and was played at least minPlayMs milliseconds. Missing artist
// and album names are backfilled with placeholder values so grouping stays
// stable, matching the original export dashboards.
func (n *Normalizer) Normalize(sessionID string, records []model.RawRecord) *NormalizeResult {
	result := &NormalizeResult{Events: make([]*model.PlayEvent, 0, len(records))}

	for _, rec := range records {
		if rec.EpisodeName != nil || rec.SpotifyEpisodeURI != nil {
			result.Skipped++ // podcast or other non-music entry
			continue
		}
		if rec.TrackName == nil || strings.TrimSpace(*rec.TrackName) == "" {
			result.Skipped++
			continue
		}
		if rec.MsPlayed <= 0 || rec.MsPlayed < n.minPlayMs {
			result.Skipped++
			continue
		}

		playedAt, err := time.Parse(time.RFC3339, rec.Ts)
		if err != nil {
			result.Warnings++
			continue
		}
		playedAt = playedAt.UTC()

		artist := unknownArtist
		if rec.ArtistName != nil && strings.TrimSpace(*rec.ArtistName) != "" {
			artist = *rec.ArtistName
		}
		album := unknownAlbum
		if rec.AlbumName != nil && strings.TrimSpace(*rec.AlbumName) != "" {
			album = *rec.AlbumName
		}

		local := playedAt.In(n.loc)
		event := &model.PlayEvent{
			SessionID:  sessionID,
			TrackName:  *rec.TrackName,
			ArtistName: artist,
			AlbumName:  album,
			PlayedAt:   playedAt,
			MsPlayed:   rec.MsPlayed,
			Date:       local.Format("2006-01-02"),
			Year:       local.Year(),
			DedupeKey:  DedupeKey(playedAt, *rec.TrackName, artist, rec.MsPlayed),
		}
		result.Events = append(result.Events, event)
	}

	return result
}

// DedupeKey derives the deterministic duplicate key for a play: SHA-1 over
// the UTC timestamp, track name, artist name and duration. Exports are known
// to repeat records across files; two records agreeing on all four fields
// are treated as the same play.
func DedupeKey(playedAt time.Time, track, artist string, msPlayed int64) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", playedAt.UTC().Format(time.RFC3339), track, artist, msPlayed)
	return hex.EncodeToString(h.Sum(nil))
}
