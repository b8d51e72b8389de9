package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ReplayFM/config"
	"ReplayFM/core/session"
	"ReplayFM/model"
	"ReplayFM/repository"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSessionRepo struct {
	sessions map[string]*model.Session
}

func (r *memSessionRepo) Create(_ context.Context, s *model.Session) error {
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) UpdateState(_ context.Context, id string, state model.SessionState) error {
	r.sessions[id].State = state
	return nil
}

func (r *memSessionRepo) ListExpired(_ context.Context, _ time.Time, _ int) ([]model.Session, error) {
	return nil, nil
}

type fakeAggregates struct {
	repository.AggregateRepository
	listCalls int
	rows      []model.EntityAggregate
}

func (f *fakeAggregates) ListAllEntityStats(_ context.Context, _ string) ([]model.EntityAggregate, error) {
	f.listCalls++
	return f.rows, nil
}

func TestGetAllTimeStatsReadsOneSnapshot(t *testing.T) {
	repo := &memSessionRepo{sessions: make(map[string]*model.Session)}
	manager := session.NewManager(repo, nil, nil, nil, nil, nil, time.Hour)
	s, _, err := manager.Create(context.Background())
	require.NoError(t, err)

	aggregates := &fakeAggregates{rows: []model.EntityAggregate{
		{EntityType: model.EntityArtist, Ordering: model.OrderByTime, Rank: 1, Name: "X", TotalMs: 300000, PlayCount: 2},
		{EntityType: model.EntityArtist, Ordering: model.OrderByCount, Rank: 1, Name: "X", TotalMs: 300000, PlayCount: 2},
		{EntityType: model.EntitySong, Ordering: model.OrderByTime, Rank: 1, Name: "A", ArtistName: "X", TotalMs: 180000, PlayCount: 1},
	}}
	handler := NewAPIHandler(manager, nil, nil, nil, aggregates, &config.Config{})

	router := mux.NewRouter()
	router.HandleFunc("/api/sessions/{id}/stats", handler.GetAllTimeStatsHandler).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+s.ID+"/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// every ranking comes out of one repository read
	assert.Equal(t, 1, aggregates.listCalls)

	var all model.AllTimeStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))

	require.Len(t, all.Artists.Time, 1)
	assert.Equal(t, "X", all.Artists.Time[0].Name)
	assert.Equal(t, 5.0, all.Artists.Time[0].Minutes)
	require.Len(t, all.Artists.Count, 1)
	assert.Zero(t, all.Artists.Count[0].Minutes)

	require.Len(t, all.Songs.Time, 1)
	assert.Equal(t, "A", all.Songs.Time[0].Name)
	assert.Equal(t, "X", all.Songs.Time[0].ArtistName)

	assert.Empty(t, all.Albums.Time)
	assert.Empty(t, all.Albums.Count)
}

func TestGetAllTimeStatsUnknownSession(t *testing.T) {
	repo := &memSessionRepo{sessions: make(map[string]*model.Session)}
	manager := session.NewManager(repo, nil, nil, nil, nil, nil, time.Hour)
	handler := NewAPIHandler(manager, nil, nil, nil, &fakeAggregates{}, &config.Config{})

	router := mux.NewRouter()
	router.HandleFunc("/api/sessions/{id}/stats", handler.GetAllTimeStatsHandler).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/no-such-session/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
