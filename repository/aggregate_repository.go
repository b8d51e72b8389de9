package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ReplayFM/model"
)

// AggregateRepository defines storage operations for the derived aggregate
// tables. Aggregates are a rebuildable cache of the event set, never
// authoritative on their own.
type AggregateRepository interface {
	// RebuildDaily recomputes the session's daily totals from play_events
	// inside one transaction (delete + insert-select).
	RebuildDaily(ctx context.Context, sessionID string) error
	// ReplaceEntityStats swaps the session's rankings for the given rows in
	// one transaction.
	ReplaceEntityStats(ctx context.Context, sessionID string, rows []model.EntityAggregate) error
	ListDaily(ctx context.Context, sessionID string) ([]model.DailyAggregate, error)
	// ListAllEntityStats returns every ranking row of a session in one
	// statement, so readers always observe one complete ranking batch even
	// when a recompute commits concurrently.
	ListAllEntityStats(ctx context.Context, sessionID string) ([]model.EntityAggregate, error)
	SumDailySeconds(ctx context.Context, sessionID string) (int64, error)
}

// mysqlAggregateRepository implements AggregateRepository for MySQL.
type mysqlAggregateRepository struct {
	DB *sql.DB
}

// NewMySQLAggregateRepository creates a new instance of mysqlAggregateRepository.
func NewMySQLAggregateRepository(database *sql.DB) AggregateRepository {
	return &mysqlAggregateRepository{DB: database}
}

// RebuildDaily derives daily_stats entirely inside MySQL; the event rows
// never cross into application memory.
func (r *mysqlAggregateRepository) RebuildDaily(ctx context.Context, sessionID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin daily rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_stats WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear daily_stats for session %s: %w", sessionID, err)
	}

	insert := `INSERT INTO daily_stats
		(session_id, date, total_ms, total_seconds, total_tracks, unique_artists, unique_tracks)
	SELECT session_id, date, SUM(ms_played), ROUND(SUM(ms_played) / 1000),
	       COUNT(*), COUNT(DISTINCT artist_name), COUNT(DISTINCT track_name)
	  FROM play_events
	 WHERE session_id = ?
	 GROUP BY session_id, date`
	if _, err := tx.ExecContext(ctx, insert, sessionID); err != nil {
		return fmt.Errorf("failed to rebuild daily_stats for session %s: %w", sessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit daily rebuild for session %s: %w", sessionID, err)
	}
	return nil
}

// ReplaceEntityStats swaps all rankings of a session atomically.
func (r *mysqlAggregateRepository) ReplaceEntityStats(ctx context.Context, sessionID string, rows []model.EntityAggregate) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin entity stats transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_stats WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear entity_stats for session %s: %w", sessionID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entity_stats
		(session_id, entity_type, ordering, rank_pos, name, artist_name, total_ms, play_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity stats insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx, sessionID, string(row.EntityType), string(row.Ordering),
			row.Rank, row.Name, row.ArtistName, row.TotalMs, row.PlayCount)
		if err != nil {
			return fmt.Errorf("failed to insert entity stat %q: %w", row.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entity stats for session %s: %w", sessionID, err)
	}
	return nil
}

// ListDaily returns the session's daily aggregates in date order.
func (r *mysqlAggregateRepository) ListDaily(ctx context.Context, sessionID string) ([]model.DailyAggregate, error) {
	query := `SELECT date, total_ms, total_seconds, total_tracks, unique_artists, unique_tracks
	           FROM daily_stats WHERE session_id = ? ORDER BY date ASC`
	rows, err := r.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily_stats for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	aggregates := make([]model.DailyAggregate, 0)
	for rows.Next() {
		agg := model.DailyAggregate{SessionID: sessionID}
		err := rows.Scan(&agg.Date, &agg.TotalMs, &agg.TotalSeconds,
			&agg.TotalTracks, &agg.UniqueArtists, &agg.UniqueTracks)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily aggregate: %w", err)
		}
		aggregates = append(aggregates, agg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListDaily: %w", err)
	}
	return aggregates, nil
}

// ListAllEntityStats returns all rankings of a session in rank order. The
// single SELECT keeps the read atomic against ReplaceEntityStats, which swaps
// the whole batch in one transaction.
func (r *mysqlAggregateRepository) ListAllEntityStats(ctx context.Context, sessionID string) ([]model.EntityAggregate, error) {
	query := `SELECT entity_type, ordering, rank_pos, name, artist_name, total_ms, play_count
	           FROM entity_stats
	          WHERE session_id = ?
	          ORDER BY entity_type, ordering, rank_pos ASC`
	rows, err := r.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity_stats for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	stats := make([]model.EntityAggregate, 0)
	for rows.Next() {
		agg := model.EntityAggregate{SessionID: sessionID}
		err := rows.Scan(&agg.EntityType, &agg.Ordering, &agg.Rank,
			&agg.Name, &agg.ArtistName, &agg.TotalMs, &agg.PlayCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity aggregate: %w", err)
		}
		stats = append(stats, agg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListAllEntityStats: %w", err)
	}
	return stats, nil
}

// SumDailySeconds totals the cached daily seconds; used to verify cache and
// source stay consistent.
func (r *mysqlAggregateRepository) SumDailySeconds(ctx context.Context, sessionID string) (int64, error) {
	var total sql.NullInt64
	err := r.DB.QueryRowContext(ctx,
		`SELECT SUM(total_seconds) FROM daily_stats WHERE session_id = ?`, sessionID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily seconds for session %s: %w", sessionID, err)
	}
	return total.Int64, nil
}
