package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ReplayFM/cache"
	"ReplayFM/config"
	"ReplayFM/core/ingest"
	"ReplayFM/core/query"
	"ReplayFM/core/session"
	"ReplayFM/core/stats"
	"ReplayFM/db"
	"ReplayFM/logger"
	"ReplayFM/model"
	"ReplayFM/repository"
	"ReplayFM/storage"

	"github.com/gorilla/mux"
)

const sweepInterval = 10 * time.Minute

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutputPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database with GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if err := db.AutoMigrateModels(&model.Session{}); err != nil {
		logger.Fatal("Failed to migrate session model", logger.ErrorField(err))
	}

	// Connect to Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	// Initialize MinIO for raw export archiving
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	// Wire repositories and core components
	eventRepo := repository.NewMySQLEventRepository(db.DB)
	aggregateRepo := repository.NewMySQLAggregateRepository(db.DB)
	sessionRepo := repository.NewGormSessionRepository(db.GormDB)

	signer := session.NewTokenSigner(cfg.TokenSecret)
	chunkStore := cache.NewRedisChunkStore(cfg.ChunkTTL)
	archiver := minioArchiver{}
	statsCache := redisStatsCache{}

	manager := session.NewManager(sessionRepo, eventRepo, chunkStore, archiver, statsCache, signer, cfg.SessionTTL)
	normalizer := ingest.NewNormalizer(cfg.MinPlayMs, cfg.Location())
	assembler := ingest.NewAssembler(chunkStore)
	aggregator := stats.NewAggregator(eventRepo, aggregateRepo, cfg.TopN)
	hub := NewProgressHub()
	ingestor := ingest.NewIngestor(manager, normalizer, assembler, eventRepo, aggregator,
		archiver, statsCache, hub, cfg.IngestTimeout)
	resolver := query.NewResolver(eventRepo)

	apiHandler := NewAPIHandler(manager, ingestor, resolver, eventRepo, aggregateRepo, cfg)

	// Background expiry sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	manager.StartSweeper(sweepCtx, sweepInterval)

	router := mux.NewRouter()

	// CORS middleware
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Session lifecycle
	router.HandleFunc("/api/sessions", apiHandler.CreateSessionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}", apiHandler.ClearSessionHandler).Methods(http.MethodDelete)

	// Ingestion
	router.HandleFunc("/api/sessions/{id}/chunks", apiHandler.UploadChunkHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/recompute", apiHandler.RecomputeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/progress", apiHandler.ProgressHandler(hub)).Methods(http.MethodGet)

	// Read endpoints for the presentation layer
	router.HandleFunc("/api/sessions/{id}/daily", apiHandler.GetDailyStatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/days/{date}/tracks", apiHandler.GetTracksForDateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/stats", apiHandler.GetAllTimeStatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/query", apiHandler.QueryHandler).Methods(http.MethodPost)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Server listening", logger.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", logger.ErrorField(err))
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", logger.ErrorField(err))
	}
	logger.Info("Server stopped")
}
