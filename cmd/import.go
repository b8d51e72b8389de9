package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ReplayFM/config"
	"ReplayFM/core/ingest"
	"ReplayFM/core/session"
	"ReplayFM/core/stats"
	"ReplayFM/db"
	"ReplayFM/logger"
	"ReplayFM/model"
	"ReplayFM/repository"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// exportFilePrefix matches the file naming of Spotify extended streaming
// history exports.
const exportFilePrefix = "Streaming_History_Audio_"

var (
	importDir     string
	importSession string
	importWatch   bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Ingest a local export directory without going through HTTP upload.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport()
	},
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", ".", "directory containing Streaming_History_Audio_*.json files")
	importCmd.Flags().StringVar(&importSession, "session", "", "existing session id to import into (default: create a new session)")
	importCmd.Flags().BoolVar(&importWatch, "watch", false, "keep watching the directory and ingest new export files as they appear")
	rootCmd.AddCommand(importCmd)
}

func runImport() error {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutputPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	if err := db.ConnectDB(cfg); err != nil {
		return err
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		return err
	}
	defer db.CloseGormDB()

	if err := db.InitDB(); err != nil {
		return err
	}
	if err := db.AutoMigrateModels(&model.Session{}); err != nil {
		return err
	}

	eventRepo := repository.NewMySQLEventRepository(db.DB)
	aggregateRepo := repository.NewMySQLAggregateRepository(db.DB)
	sessionRepo := repository.NewGormSessionRepository(db.GormDB)

	// The import path runs without Redis or MinIO: no chunk buffering, no
	// archive, no stats cache.
	manager := session.NewManager(sessionRepo, eventRepo, nil, nil, nil,
		session.NewTokenSigner(cfg.TokenSecret), cfg.SessionTTL)
	normalizer := ingest.NewNormalizer(cfg.MinPlayMs, cfg.Location())
	aggregator := stats.NewAggregator(eventRepo, aggregateRepo, cfg.TopN)
	ingestor := ingest.NewIngestor(manager, normalizer, nil, eventRepo, aggregator,
		nil, nil, nil, cfg.IngestTimeout)

	ctx := context.Background()

	sessionID := importSession
	if sessionID == "" {
		s, _, err := manager.Create(ctx)
		if err != nil {
			return err
		}
		sessionID = s.ID
		logger.Info("Created import session", logger.String("sessionId", sessionID))
	}

	if err := importDirectory(ctx, ingestor, sessionID, importDir); err != nil {
		return err
	}

	if importWatch {
		return watchDirectory(ctx, ingestor, sessionID, importDir)
	}
	return nil
}

// importDirectory ingests every export file currently in dir.
func importDirectory(ctx context.Context, ingestor *ingest.Ingestor, sessionID, dir string) error {
	pattern := filepath.Join(dir, exportFilePrefix+"*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	logger.Info("Found export files", logger.Int("count", len(files)), logger.String("dir", dir))

	for _, file := range files {
		if err := importFile(ctx, ingestor, sessionID, file); err != nil {
			logger.Error("Failed to import file", logger.String("file", file), logger.ErrorField(err))
			continue
		}
	}
	return nil
}

func importFile(ctx context.Context, ingestor *ingest.Ingestor, sessionID, path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	records, err := ingest.ParseRecords(payload)
	if err != nil {
		return err
	}

	report, err := ingestor.IngestRecords(ctx, sessionID, filepath.Base(path), records)
	if err != nil {
		return err
	}

	logger.Info("Imported export file",
		logger.String("file", filepath.Base(path)),
		logger.String("sessionId", sessionID),
		logger.Int("accepted", report.Accepted),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("skipped", report.Skipped))
	return nil
}

// watchDirectory ingests export files as they are dropped into dir.
func watchDirectory(ctx context.Context, ingestor *ingest.Ingestor, sessionID, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	logger.Info("Watching directory for new exports", logger.String("dir", dir))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasPrefix(name, exportFilePrefix) || !strings.HasSuffix(name, ".json") {
				continue
			}
			// Exports are copied in, not streamed; a short settle delay
			// avoids reading a half-written file.
			time.Sleep(500 * time.Millisecond)
			if err := importFile(ctx, ingestor, sessionID, event.Name); err != nil {
				logger.Error("Failed to import watched file",
					logger.String("file", event.Name), logger.ErrorField(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher error", logger.ErrorField(err))
		}
	}
}
