package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"ReplayFM/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxIdleConns(10)
	DB.SetMaxOpenConns(100)
	DB.SetConnMaxLifetime(time.Hour)

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
// The sessions table is managed separately through GORM (see gorm.go).
func InitDB() error {
	if err := createPlayEventsTable(); err != nil {
		return err
	}
	if err := createDailyStatsTable(); err != nil {
		return err
	}
	if err := createEntityStatsTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createPlayEventsTable() error {
	// dedupe_key is a SHA-1 over (ts, track, artist, ms_played); the unique
	// index makes re-ingested chunks a no-op inside the insert transaction.
	query := `
	CREATE TABLE IF NOT EXISTS play_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id CHAR(36) NOT NULL,
		track_name VARCHAR(500) NOT NULL,
		artist_name VARCHAR(500) NOT NULL,
		album_name VARCHAR(500) NOT NULL DEFAULT '',
		played_at DATETIME NOT NULL,
		ms_played BIGINT NOT NULL,
		date CHAR(10) NOT NULL,
		year INT NOT NULL,
		dedupe_key CHAR(40) NOT NULL,
		UNIQUE KEY uniq_session_dedupe (session_id, dedupe_key),
		KEY idx_session_date (session_id, date),
		KEY idx_session_year (session_id, year),
		KEY idx_session_artist_track (session_id, artist_name(191), track_name(191)),
		KEY idx_session_played_at (session_id, played_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create play_events table: %w", err)
	}
	return nil
}

func createDailyStatsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS daily_stats (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id CHAR(36) NOT NULL,
		date CHAR(10) NOT NULL,
		total_ms BIGINT NOT NULL,
		total_seconds BIGINT NOT NULL,
		total_tracks INT NOT NULL,
		unique_artists INT NOT NULL,
		unique_tracks INT NOT NULL,
		UNIQUE KEY uniq_session_date (session_id, date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create daily_stats table: %w", err)
	}
	return nil
}

func createEntityStatsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS entity_stats (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id CHAR(36) NOT NULL,
		entity_type VARCHAR(16) NOT NULL,
		ordering VARCHAR(16) NOT NULL,
		rank_pos INT NOT NULL,
		name VARCHAR(500) NOT NULL,
		artist_name VARCHAR(500) NOT NULL DEFAULT '',
		total_ms BIGINT NOT NULL,
		play_count BIGINT NOT NULL,
		UNIQUE KEY uniq_session_ranking (session_id, entity_type, ordering, rank_pos)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create entity_stats table: %w", err)
	}
	return nil
}
