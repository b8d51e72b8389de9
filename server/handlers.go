package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ReplayFM/apperr"
	"ReplayFM/cache"
	"ReplayFM/config"
	"ReplayFM/core/ingest"
	"ReplayFM/core/query"
	"ReplayFM/core/session"
	"ReplayFM/core/stats"
	"ReplayFM/logger"
	"ReplayFM/model"
	"ReplayFM/repository"

	"github.com/gorilla/mux"
)

// APIHandler handles all API requests.
type APIHandler struct {
	manager    *session.Manager
	ingestor   *ingest.Ingestor
	resolver   *query.Resolver
	events     repository.EventRepository
	aggregates repository.AggregateRepository
	cfg        *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	manager *session.Manager,
	ingestor *ingest.Ingestor,
	resolver *query.Resolver,
	events repository.EventRepository,
	aggregates repository.AggregateRepository,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		manager:    manager,
		ingestor:   ingestor,
		resolver:   resolver,
		events:     events,
		aggregates: aggregates,
		cfg:        cfg,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", logger.ErrorField(err))
	}
}

// writeError maps the error taxonomy to HTTP statuses. Internal detail never
// reaches the caller; unknown errors degrade to a generic message.
func writeError(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case apperr.KindNotFound:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case apperr.KindTransientStore:
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage temporarily unavailable, retry later"})
	case apperr.KindDataConflict:
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		logger.Error("Unhandled request error", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// requireSession resolves the session from the URL, or from a bearer token
// when one is supplied, and fails with NotFound for unknown/expired ids.
func (h *APIHandler) requireSession(ctx context.Context, r *http.Request) (*model.Session, error) {
	id := mux.Vars(r)["id"]

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		s, err := h.manager.ResolveToken(ctx, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return nil, err
		}
		if id != "" && s.ID != id {
			return nil, apperr.NotFound("session token does not match session %s", id)
		}
		return s, nil
	}

	return h.manager.Require(ctx, id)
}

// CreateSessionHandler allocates a new session.
func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, token, err := h.manager.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": s.ID,
		"token":     token,
		"expiresAt": s.ExpiresAt,
	})
}

// ClearSessionHandler purges all data of a session.
func (h *APIHandler) ClearSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.requireSession(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.manager.Clear(r.Context(), s.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": s.ID, "state": string(model.SessionCleared)})
}

// UploadChunkHandler accepts one transport chunk of an export file.
// Expected JSON body: fileName, chunkIndex, totalChunks, records.
func (h *APIHandler) UploadChunkHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.requireSession(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	var chunk model.ChunkUpload
	if err := json.NewDecoder(r.Body).Decode(&chunk); err != nil {
		writeError(w, apperr.Validation("malformed chunk payload: %v", err))
		return
	}
	chunk.SessionID = s.ID

	report, err := h.ingestor.SubmitChunk(r.Context(), &chunk)
	if err != nil {
		writeError(w, err)
		return
	}

	if report == nil {
		// File still waiting for more chunks.
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"fileName": chunk.FileName,
			"buffered": true,
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RecomputeHandler rebuilds the session's aggregates from stored events.
func (h *APIHandler) RecomputeHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.requireSession(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.ingestor.Recompute(r.Context(), s.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": s.ID, "status": "recomputed"})
}

// GetDailyStatsHandler returns the session's daily totals series.
func (h *APIHandler) GetDailyStatsHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.requireSession(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	var series []model.DailyAggregate
	if hit, err := cache.GetJSON(r.Context(), cache.DailySeriesKey(s.ID), &series); err == nil && hit {
		writeJSON(w, http.StatusOK, series)
		return
	}

	series, err = h.aggregates.ListDaily(r.Context(), s.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := cache.SetJSON(r.Context(), cache.DailySeriesKey(s.ID), series); err != nil {
		logger.Warn("Failed to cache daily series", logger.String("sessionId", s.ID), logger.ErrorField(err))
	}
	writeJSON(w, http.StatusOK, series)
}

// GetTracksForDateHandler lists the tracks played on one date.
func (h *APIHandler) GetTracksForDateHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.requireSession(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	date := mux.Vars(r)["date"]
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, apperr.Validation("invalid date format %q, expected YYYY-MM-DD", date))
		return
	}

	events, err := h.events.ListByDate(r.Context(), s.ID, date)
	if err != nil {
		writeError(w, err)
		return
	}

	type trackEntry struct {
		TrackName  string `json:"trackName"`
		ArtistName string `json:"artistName"`
		MsPlayed   int64  `json:"msPlayed"`
	}
	tracks := make([]trackEntry, 0, len(events))
	for _, ev := range events {
		tracks = append(tracks, trackEntry{TrackName: ev.TrackName, ArtistName: ev.ArtistName, MsPlayed: ev.MsPlayed})
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetAllTimeStatsHandler returns the top-N rankings per entity type under
// both orderings.
func (h *APIHandler) GetAllTimeStatsHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.requireSession(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	var all model.AllTimeStats
	if hit, err := cache.GetJSON(r.Context(), cache.AllTimeStatsKey(s.ID), &all); err == nil && hit {
		writeJSON(w, http.StatusOK, all)
		return
	}

	// One statement so the response is a single snapshot; a recompute
	// committing mid-read can never produce a response mixing two batches.
	rows, err := h.aggregates.ListAllEntityStats(r.Context(), s.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	lists := map[model.EntityType]*model.TopList{
		model.EntityArtist: &all.Artists,
		model.EntitySong:   &all.Songs,
		model.EntityAlbum:  &all.Albums,
	}
	for _, list := range lists {
		list.Time = []model.EntityAggregate{}
		list.Count = []model.EntityAggregate{}
	}
	for _, row := range rows {
		list, ok := lists[row.EntityType]
		if !ok {
			continue
		}
		if row.Ordering == model.OrderByTime {
			// minutes are display precision, derived on the way out
			// rather than stored
			row.Minutes = stats.RoundMinutes(row.TotalMs)
			list.Time = append(list.Time, row)
		} else {
			list.Count = append(list.Count, row)
		}
	}

	if err := cache.SetJSON(r.Context(), cache.AllTimeStatsKey(s.ID), all); err != nil {
		logger.Warn("Failed to cache all-time stats", logger.String("sessionId", s.ID), logger.ErrorField(err))
	}
	writeJSON(w, http.StatusOK, all)
}

// QueryHandler resolves one structured statistical intent.
func (h *APIHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.requireSession(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	var intent model.QueryIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, apperr.Validation("malformed intent payload: %v", err))
		return
	}

	result, err := h.resolver.Resolve(r.Context(), s.ID, intent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
