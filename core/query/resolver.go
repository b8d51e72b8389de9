package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ReplayFM/apperr"
	"ReplayFM/model"
	"ReplayFM/repository"
)

const (
	MetricTime  = "time"
	MetricCount = "count"

	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitPlays   = "plays"

	TimeframeAll = "all"
)

// Resolver answers structured statistical intents against the event store.
// It is read-only and safe to use concurrently.
type Resolver struct {
	events repository.EventRepository
}

// NewResolver creates a resolver over the given event repository.
func NewResolver(events repository.EventRepository) *Resolver {
	return &Resolver{events: events}
}

// resolvedIntent is the validated form of a loosely-typed intent. Raw
// intents from the external interpreter never reach the store directly.
type resolvedIntent struct {
	track  string // normalized, "" = unset
	artist string
	album  string
	metric string
	year   int // 0 = all time
	unit   string
	echo   string // timeframe to echo back
}

// validate turns a raw intent into a resolvedIntent or a validation error.
func validate(intent model.QueryIntent) (*resolvedIntent, error) {
	r := &resolvedIntent{
		track:  Normalize(intent.Track),
		artist: Normalize(intent.Artist),
		album:  Normalize(intent.Album),
	}

	if r.track == "" && r.artist == "" && r.album == "" {
		return nil, apperr.Validation("intent needs at least one of track, artist or album")
	}

	switch strings.ToLower(strings.TrimSpace(intent.Metric)) {
	case "", MetricTime:
		r.metric = MetricTime
	case MetricCount:
		r.metric = MetricCount
	default:
		return nil, apperr.Validation("unknown metric %q", intent.Metric)
	}

	tf := strings.ToLower(strings.TrimSpace(intent.Timeframe))
	switch {
	case tf == "" || tf == TimeframeAll:
		r.echo = TimeframeAll
	case len(tf) == 4:
		year, err := strconv.Atoi(tf)
		if err != nil {
			return nil, apperr.Validation("timeframe %q is not a year or %q", intent.Timeframe, TimeframeAll)
		}
		r.year = year
		r.echo = tf
	default:
		return nil, apperr.Validation("timeframe %q is not a 4-digit year or %q", intent.Timeframe, TimeframeAll)
	}

	switch strings.ToLower(strings.TrimSpace(intent.TimeUnit)) {
	case "", UnitHours:
		r.unit = UnitHours
	case UnitMinutes:
		r.unit = UnitMinutes
	default:
		return nil, apperr.Validation("unknown time unit %q", intent.TimeUnit)
	}
	if r.metric == MetricCount {
		r.unit = UnitPlays
	}

	return r, nil
}

// Resolve answers one intent for a session. Zero matches is a normal
// no-data result, never an error; only a structurally invalid intent fails.
func (q *Resolver) Resolve(ctx context.Context, sessionID string, intent model.QueryIntent) (*model.QueryResult, error) {
	r, err := validate(intent)
	if err != nil {
		return nil, err
	}

	// Candidate filter per the intent shape: a track match (optionally
	// narrowed by artist) takes precedence, then album, then artist alone.
	filter := repository.EventFilter{SessionID: sessionID, Year: r.year}
	switch {
	case r.track != "":
		filter.Track = r.track
		filter.Artist = r.artist
	case r.album != "":
		filter.Album = r.album
		filter.Artist = r.artist
	default:
		filter.Artist = r.artist
	}

	totals, err := q.events.AggregateFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve intent: %w", err)
	}

	result := &model.QueryResult{
		Unit:      r.unit,
		Timeframe: r.echo,
	}

	if totals.PlayCount == 0 {
		result.NoData = true
		result.MatchedEntityName = requestedName(intent)
		return result, nil
	}

	switch {
	case filter.Track != "":
		result.MatchedEntityName = totals.MatchedTrack
	case filter.Album != "":
		result.MatchedEntityName = totals.MatchedAlbum
	default:
		result.MatchedEntityName = totals.MatchedArtist
	}

	if r.metric == MetricCount {
		result.Value = float64(totals.PlayCount)
		return result, nil
	}

	switch r.unit {
	case UnitMinutes:
		result.Value = float64(totals.TotalMs) / 60000
	default:
		result.Value = float64(totals.TotalMs) / 3600000
	}
	return result, nil
}

// requestedName echoes the name the caller asked about when nothing matched.
func requestedName(intent model.QueryIntent) string {
	for _, name := range []string{intent.Track, intent.Album, intent.Artist} {
		if strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
	}
	return ""
}
