package query

import (
	"context"
	"testing"

	"ReplayFM/apperr"
	"ReplayFM/model"
	"ReplayFM/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventRepo struct {
	repository.EventRepository
	totals     repository.FilterTotals
	lastFilter repository.EventFilter
}

func (f *fakeEventRepo) AggregateFilter(_ context.Context, filter repository.EventFilter) (*repository.FilterTotals, error) {
	f.lastFilter = filter
	return &f.totals, nil
}

func TestResolveValidation(t *testing.T) {
	r := NewResolver(&fakeEventRepo{})
	ctx := context.Background()

	tests := []struct {
		name   string
		intent model.QueryIntent
	}{
		{"no identifying field", model.QueryIntent{Metric: MetricTime}},
		{"unknown metric", model.QueryIntent{Artist: "X", Metric: "loudness"}},
		{"bad timeframe", model.QueryIntent{Artist: "X", Timeframe: "last summer"}},
		{"bad unit", model.QueryIntent{Artist: "X", TimeUnit: "fortnights"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, "s1", tt.intent)
			assert.True(t, apperr.IsValidation(err))
		})
	}
}

func TestResolveArtistMinutesForYear(t *testing.T) {
	repo := &fakeEventRepo{totals: repository.FilterTotals{
		TotalMs:       300000,
		PlayCount:     2,
		MatchedArtist: "Artist X",
	}}
	r := NewResolver(repo)

	result, err := r.Resolve(context.Background(), "s1", model.QueryIntent{
		Artist:    "  artist x ",
		Metric:    MetricTime,
		Timeframe: "2023",
		TimeUnit:  UnitMinutes,
	})
	require.NoError(t, err)

	assert.Equal(t, 5.0, result.Value)
	assert.Equal(t, UnitMinutes, result.Unit)
	assert.Equal(t, "Artist X", result.MatchedEntityName)
	assert.Equal(t, "2023", result.Timeframe)
	assert.False(t, result.NoData)

	// matching is case- and whitespace-insensitive
	assert.Equal(t, "artist x", repo.lastFilter.Artist)
	assert.Equal(t, 2023, repo.lastFilter.Year)
}

func TestResolveDefaultsToHoursAllTime(t *testing.T) {
	repo := &fakeEventRepo{totals: repository.FilterTotals{
		TotalMs:       7200000,
		PlayCount:     40,
		MatchedArtist: "X",
	}}
	r := NewResolver(repo)

	result, err := r.Resolve(context.Background(), "s1", model.QueryIntent{Artist: "X"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, result.Value)
	assert.Equal(t, UnitHours, result.Unit)
	assert.Equal(t, TimeframeAll, result.Timeframe)
	assert.Zero(t, repo.lastFilter.Year)
}

func TestResolveCountMetricReturnsPlays(t *testing.T) {
	repo := &fakeEventRepo{totals: repository.FilterTotals{
		TotalMs:      300000,
		PlayCount:    7,
		MatchedTrack: "Song A",
	}}
	r := NewResolver(repo)

	result, err := r.Resolve(context.Background(), "s1", model.QueryIntent{
		Track:    "Song A",
		Artist:   "X",
		Metric:   MetricCount,
		TimeUnit: UnitMinutes, // ignored for count
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, result.Value)
	assert.Equal(t, UnitPlays, result.Unit)
	assert.Equal(t, "Song A", result.MatchedEntityName)
	assert.Equal(t, "song a", repo.lastFilter.Track)
	assert.Equal(t, "x", repo.lastFilter.Artist)
}

func TestResolveTrackTakesPrecedenceOverAlbum(t *testing.T) {
	repo := &fakeEventRepo{totals: repository.FilterTotals{
		TotalMs: 1000, PlayCount: 1, MatchedTrack: "A",
	}}
	r := NewResolver(repo)

	_, err := r.Resolve(context.Background(), "s1", model.QueryIntent{
		Track: "A", Album: "B",
	})
	require.NoError(t, err)
	assert.Equal(t, "a", repo.lastFilter.Track)
	assert.Empty(t, repo.lastFilter.Album)
}

func TestResolveNoDataEchoesRequestedName(t *testing.T) {
	r := NewResolver(&fakeEventRepo{}) // zero totals

	result, err := r.Resolve(context.Background(), "s1", model.QueryIntent{Artist: "Nobody"})
	require.NoError(t, err)
	assert.True(t, result.NoData)
	assert.Zero(t, result.Value)
	assert.Equal(t, "Nobody", result.MatchedEntityName)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "artist x", Normalize("  Artist X "))
	assert.True(t, Matches("ARTIST x", "artist X "))
	assert.False(t, Matches("artist x", "artist y"))
}
