package stats

import (
	"context"
	"fmt"
	"math"
	"sort"

	"ReplayFM/logger"
	"ReplayFM/model"
	"ReplayFM/repository"
)

// DefaultTopN is the ranking size when none is configured.
const DefaultTopN = 10

// Aggregator recomputes a session's derived aggregates from its stored
// events. Recomputation is pure: running it twice over an unchanged event
// set yields identical daily totals and rankings.
type Aggregator struct {
	events     repository.EventRepository
	aggregates repository.AggregateRepository
	topN       int
}

// NewAggregator creates an aggregator. topN <= 0 falls back to DefaultTopN.
func NewAggregator(events repository.EventRepository, aggregates repository.AggregateRepository, topN int) *Aggregator {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Aggregator{events: events, aggregates: aggregates, topN: topN}
}

// Recompute rebuilds daily totals and all-time top-N rankings for a session.
// Daily totals are derived inside the database; rankings pull only grouped
// per-entity rows into memory before ordering them.
func (a *Aggregator) Recompute(ctx context.Context, sessionID string) error {
	if err := a.aggregates.RebuildDaily(ctx, sessionID); err != nil {
		return fmt.Errorf("daily rebuild: %w", err)
	}

	rows := make([]model.EntityAggregate, 0, 6*a.topN)
	for _, entity := range []model.EntityType{model.EntityArtist, model.EntitySong, model.EntityAlbum} {
		totals, err := a.events.EntityTotals(ctx, sessionID, entity)
		if err != nil {
			return fmt.Errorf("entity totals (%s): %w", entity, err)
		}
		for _, ordering := range []model.Ordering{model.OrderByTime, model.OrderByCount} {
			ranked := RankTop(totals, entity, ordering, a.topN)
			rows = append(rows, ranked...)
		}
	}

	if err := a.aggregates.ReplaceEntityStats(ctx, sessionID, rows); err != nil {
		return fmt.Errorf("replace entity stats: %w", err)
	}

	if err := a.verifyDailyTotals(ctx, sessionID); err != nil {
		return err
	}

	eventCount, err := a.events.CountBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("count session events: %w", err)
	}

	logger.Info("Recomputed aggregates",
		logger.String("sessionId", sessionID),
		logger.Int64("events", eventCount),
		logger.Int("rankingRows", len(rows)))
	return nil
}

// verifyDailyTotals cross-checks the rebuilt daily table against the event
// store: the cached seconds must add up to the stored milliseconds, allowing
// for the per-day rounding (each day's total_seconds is rounded, so it can
// sit up to half a second away from its events).
func (a *Aggregator) verifyDailyTotals(ctx context.Context, sessionID string) error {
	totalMs, err := a.events.SumPlayedMs(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("verify daily totals: %w", err)
	}
	dailySeconds, err := a.aggregates.SumDailySeconds(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("verify daily totals: %w", err)
	}
	series, err := a.aggregates.ListDaily(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("verify daily totals: %w", err)
	}

	drift := dailySeconds*1000 - totalMs
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(len(series))*500 {
		return fmt.Errorf("daily totals drifted from events for session %s: %d cached seconds vs %d ms played over %d days",
			sessionID, dailySeconds, totalMs, len(series))
	}
	return nil
}

// RankTop orders grouped entity totals under one metric and returns the top
// n rows. The ordering is fully deterministic: metric value descending, then
// earlier first-occurrence timestamp, then lexicographic name (and artist
// for songs and albums). Ties can therefore never reshuffle between
// recomputations.
func RankTop(totals []*repository.EntityTotal, entity model.EntityType, ordering model.Ordering, n int) []model.EntityAggregate {
	sorted := make([]*repository.EntityTotal, len(totals))
	copy(sorted, totals)

	metric := func(t *repository.EntityTotal) int64 {
		if ordering == model.OrderByCount {
			return t.PlayCount
		}
		return t.TotalMs
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if metric(a) != metric(b) {
			return metric(a) > metric(b)
		}
		if !a.FirstPlayedAt.Equal(b.FirstPlayedAt) {
			return a.FirstPlayedAt.Before(b.FirstPlayedAt)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ArtistName < b.ArtistName
	})

	if n > len(sorted) {
		n = len(sorted)
	}

	ranked := make([]model.EntityAggregate, 0, n)
	for i := 0; i < n; i++ {
		t := sorted[i]
		row := model.EntityAggregate{
			EntityType: entity,
			Ordering:   ordering,
			Rank:       i + 1,
			Name:       t.Name,
			TotalMs:    t.TotalMs,
			PlayCount:  t.PlayCount,
		}
		if entity != model.EntityArtist {
			row.ArtistName = t.ArtistName
		}
		if ordering == model.OrderByTime {
			row.Minutes = RoundMinutes(t.TotalMs)
		}
		ranked = append(ranked, row)
	}
	return ranked
}

// RoundMinutes converts milliseconds to minutes rounded to one decimal, the
// display precision the dashboard uses.
func RoundMinutes(ms int64) float64 {
	return math.Round(float64(ms)/1000/60*10) / 10
}
