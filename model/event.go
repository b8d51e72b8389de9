package model

import "time"

// RawRecord mirrors one entry of a Spotify extended streaming history export
// (Streaming_History_Audio_*.json). Nullable metadata fields are pointers so
// the normalizer can tell "absent" from "empty".
type RawRecord struct {
	Ts                string  `json:"ts"`
	Platform          string  `json:"platform"`
	MsPlayed          int64   `json:"ms_played"`
	ConnCountry       string  `json:"conn_country"`
	TrackName         *string `json:"master_metadata_track_name"`
	ArtistName        *string `json:"master_metadata_album_artist_name"`
	AlbumName         *string `json:"master_metadata_album_album_name"`
	SpotifyTrackURI   *string `json:"spotify_track_uri"`
	EpisodeName       *string `json:"episode_name"`
	EpisodeShowName   *string `json:"episode_show_name"`
	SpotifyEpisodeURI *string `json:"spotify_episode_uri"`
	ReasonStart       string  `json:"reason_start"`
	ReasonEnd         string  `json:"reason_end"`
	Shuffle           bool    `json:"shuffle"`
	Skipped           bool    `json:"skipped"`
}

// PlayEvent is the canonical, immutable record of one qualifying track play.
// Events are the source of truth; every aggregate is rebuildable from them.
type PlayEvent struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"sessionId"`
	TrackName  string    `json:"trackName"`
	ArtistName string    `json:"artistName"`
	AlbumName  string    `json:"albumName"`
	PlayedAt   time.Time `json:"playedAt"` // always UTC
	MsPlayed   int64     `json:"msPlayed"`
	Date       string    `json:"date"` // YYYY-MM-DD in the configured stats timezone
	Year       int       `json:"year"`
	DedupeKey  string    `json:"-"` // deterministic duplicate key, unique per session
}

// ChunkUpload is one transport chunk of a logical export file. Chunks for the
// same (SessionID, FileName) pair may arrive in any order; TotalChunks tells
// the assembler when the file is complete.
type ChunkUpload struct {
	SessionID   string      `json:"sessionId"`
	FileName    string      `json:"fileName"`
	ChunkIndex  int         `json:"chunkIndex"`
	TotalChunks int         `json:"totalChunks"`
	Records     []RawRecord `json:"records"`
}

// IngestReport summarizes one committed ingestion batch.
type IngestReport struct {
	BatchID    string `json:"batchId"`
	FileName   string `json:"fileName"`
	Accepted   int    `json:"accepted"`   // qualifying events committed
	Duplicates int    `json:"duplicates"` // dropped by the dedupe policy
	Skipped    int    `json:"skipped"`    // non-qualifying records filtered out
	Warnings   int    `json:"warnings"`   // malformed records inside an otherwise valid chunk
}
