package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ReplayFM/logger"
	"ReplayFM/model"
)

// EventFilter selects qualifying events for query resolution. Name fields
// are pre-normalized (lower-cased, trimmed) by the matching policy; empty
// fields apply no constraint. Year 0 means all time.
type EventFilter struct {
	SessionID string
	Track     string
	Artist    string
	Album     string
	Year      int
}

// FilterTotals is the aggregate answer for one filter, computed in SQL.
// Matched names carry the canonical (stored) spelling of the matched entity.
type FilterTotals struct {
	TotalMs       int64
	PlayCount     int64
	MatchedTrack  string
	MatchedArtist string
	MatchedAlbum  string
}

// EntityTotal is one grouped row feeding the top-N ranking: totals plus the
// first-occurrence timestamp used by the deterministic tie-break.
type EntityTotal struct {
	Name          string
	ArtistName    string
	TotalMs       int64
	PlayCount     int64
	FirstPlayedAt time.Time
}

// EventRepository defines storage operations for play events.
type EventRepository interface {
	// InsertBatch commits events atomically. Duplicates (same session and
	// dedupe key) are dropped silently; the returned counts separate fresh
	// inserts from duplicates.
	InsertBatch(ctx context.Context, sessionID string, events []*model.PlayEvent) (inserted, duplicates int, err error)
	ListByDate(ctx context.Context, sessionID, date string) ([]*model.PlayEvent, error)
	CountBySession(ctx context.Context, sessionID string) (int64, error)
	SumPlayedMs(ctx context.Context, sessionID string) (int64, error)
	AggregateFilter(ctx context.Context, f EventFilter) (*FilterTotals, error)
	EntityTotals(ctx context.Context, sessionID string, entity model.EntityType) ([]*EntityTotal, error)
	// PurgeSession removes the session's events and aggregates in one
	// transaction. Partial purge is never observable.
	PurgeSession(ctx context.Context, sessionID string) error
}

// mysqlEventRepository implements EventRepository for MySQL.
type mysqlEventRepository struct {
	DB *sql.DB
}

// NewMySQLEventRepository creates a new instance of mysqlEventRepository.
func NewMySQLEventRepository(database *sql.DB) EventRepository {
	return &mysqlEventRepository{DB: database}
}

// InsertBatch inserts all events of one ingestion batch in a single
// transaction. INSERT IGNORE against the unique (session_id, dedupe_key)
// index resolves re-ingested duplicates without failing the batch.
func (r *mysqlEventRepository) InsertBatch(ctx context.Context, sessionID string, events []*model.PlayEvent) (int, int, error) {
	if len(events) == 0 {
		return 0, 0, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT IGNORE INTO play_events
		(session_id, track_name, artist_name, album_name, played_at, ms_played, date, year, dedupe_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, ev := range events {
		res, err := stmt.ExecContext(ctx,
			sessionID, ev.TrackName, ev.ArtistName, ev.AlbumName,
			ev.PlayedAt.UTC(), ev.MsPlayed, ev.Date, ev.Year, ev.DedupeKey)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert event %q: %w", ev.TrackName, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit batch insert: %w", err)
	}

	duplicates := len(events) - inserted
	logger.Debug("Committed event batch",
		logger.String("sessionId", sessionID),
		logger.Int("inserted", inserted),
		logger.Int("duplicates", duplicates))
	return inserted, duplicates, nil
}

// ListByDate retrieves all qualifying events of a session on one date.
func (r *mysqlEventRepository) ListByDate(ctx context.Context, sessionID, date string) ([]*model.PlayEvent, error) {
	query := `SELECT id, session_id, track_name, artist_name, album_name, played_at, ms_played, date, year
	           FROM play_events WHERE session_id = ? AND date = ? ORDER BY played_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, sessionID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for date %s: %w", date, err)
	}
	defer rows.Close()

	events := make([]*model.PlayEvent, 0)
	for rows.Next() {
		ev := &model.PlayEvent{}
		err := rows.Scan(&ev.ID, &ev.SessionID, &ev.TrackName, &ev.ArtistName, &ev.AlbumName,
			&ev.PlayedAt, &ev.MsPlayed, &ev.Date, &ev.Year)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event in ListByDate: %w", err)
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListByDate: %w", err)
	}
	return events, nil
}

// CountBySession returns the number of qualifying events stored for a session.
func (r *mysqlEventRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM play_events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events for session %s: %w", sessionID, err)
	}
	return n, nil
}

// SumPlayedMs returns the total milliseconds played across a session.
func (r *mysqlEventRepository) SumPlayedMs(ctx context.Context, sessionID string) (int64, error) {
	var ms sql.NullInt64
	err := r.DB.QueryRowContext(ctx,
		`SELECT SUM(ms_played) FROM play_events WHERE session_id = ?`, sessionID).Scan(&ms)
	if err != nil {
		return 0, fmt.Errorf("failed to sum played ms for session %s: %w", sessionID, err)
	}
	return ms.Int64, nil
}

// AggregateFilter computes the matching totals for a resolver filter in SQL.
// Name comparisons are normalized the same way the matching policy
// normalizes its inputs.
func (r *mysqlEventRepository) AggregateFilter(ctx context.Context, f EventFilter) (*FilterTotals, error) {
	query := `SELECT COALESCE(SUM(ms_played), 0), COUNT(*),
	                 COALESCE(MAX(track_name), ''), COALESCE(MAX(artist_name), ''), COALESCE(MAX(album_name), '')
	           FROM play_events WHERE session_id = ?`
	args := []interface{}{f.SessionID}

	if f.Track != "" {
		query += ` AND LOWER(TRIM(track_name)) = ?`
		args = append(args, f.Track)
	}
	if f.Artist != "" {
		query += ` AND LOWER(TRIM(artist_name)) = ?`
		args = append(args, f.Artist)
	}
	if f.Album != "" {
		query += ` AND LOWER(TRIM(album_name)) = ?`
		args = append(args, f.Album)
	}
	if f.Year != 0 {
		query += ` AND year = ?`
		args = append(args, f.Year)
	}

	totals := &FilterTotals{}
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(
		&totals.TotalMs, &totals.PlayCount,
		&totals.MatchedTrack, &totals.MatchedArtist, &totals.MatchedAlbum)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate filter for session %s: %w", f.SessionID, err)
	}
	return totals, nil
}

// EntityTotals returns grouped totals per entity, including the
// first-occurrence timestamp the ranking tie-break needs. Only grouped rows
// cross into application memory, never the raw event set.
func (r *mysqlEventRepository) EntityTotals(ctx context.Context, sessionID string, entity model.EntityType) ([]*EntityTotal, error) {
	var query string
	switch entity {
	case model.EntityArtist:
		query = `SELECT artist_name, '', SUM(ms_played), COUNT(*), MIN(played_at)
		          FROM play_events WHERE session_id = ? GROUP BY artist_name`
	case model.EntitySong:
		query = `SELECT track_name, artist_name, SUM(ms_played), COUNT(*), MIN(played_at)
		          FROM play_events WHERE session_id = ? GROUP BY track_name, artist_name`
	case model.EntityAlbum:
		query = `SELECT album_name, artist_name, SUM(ms_played), COUNT(*), MIN(played_at)
		          FROM play_events WHERE session_id = ? GROUP BY album_name, artist_name`
	default:
		return nil, fmt.Errorf("unknown entity type %q", entity)
	}

	rows, err := r.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity totals (%s): %w", entity, err)
	}
	defer rows.Close()

	totals := make([]*EntityTotal, 0)
	for rows.Next() {
		t := &EntityTotal{}
		if err := rows.Scan(&t.Name, &t.ArtistName, &t.TotalMs, &t.PlayCount, &t.FirstPlayedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity total: %w", err)
		}
		totals = append(totals, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in EntityTotals: %w", err)
	}
	return totals, nil
}

// PurgeSession deletes events, daily stats and entity stats of a session in
// one transaction.
func (r *mysqlEventRepository) PurgeSession(ctx context.Context, sessionID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin purge transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"play_events", "daily_stats", "entity_stats"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", table), sessionID); err != nil {
			return fmt.Errorf("failed to purge %s for session %s: %w", table, sessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit purge for session %s: %w", sessionID, err)
	}

	logger.Info("Purged session data", logger.String("sessionId", sessionID))
	return nil
}
