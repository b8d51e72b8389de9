package model

// EntityType selects which dimension a ranking or query runs over.
type EntityType string

const (
	EntityArtist EntityType = "artist"
	EntitySong   EntityType = "song"
	EntityAlbum  EntityType = "album"
)

// Ordering selects the metric a top-N ranking is sorted by.
type Ordering string

const (
	OrderByTime  Ordering = "time"  // total milliseconds played
	OrderByCount Ordering = "count" // number of qualifying plays
)

// DailyAggregate is the cached per-day summary of qualifying events.
// TotalSeconds is the contract field; the remaining columns follow the
// original daily_stats shape and feed the calendar view.
type DailyAggregate struct {
	SessionID     string `json:"-"`
	Date          string `json:"date"`
	TotalSeconds  int64  `json:"totalSeconds"`
	TotalTracks   int    `json:"totalTracks"`
	UniqueArtists int    `json:"uniqueArtists"`
	UniqueTracks  int    `json:"uniqueTracks"`
	TotalMs       int64  `json:"-"`
}

// EntityAggregate is one row of an all-time top-N ranking. ArtistName is
// empty for artist rankings and disambiguates songs and albums otherwise.
type EntityAggregate struct {
	SessionID  string     `json:"-"`
	EntityType EntityType `json:"-"`
	Ordering   Ordering   `json:"-"`
	Rank       int        `json:"rank"`
	Name       string     `json:"name"`
	ArtistName string     `json:"artistName,omitempty"`
	TotalMs    int64      `json:"totalMs"`
	PlayCount  int64      `json:"playCount"`
	// Minutes is the time ranking's display value, rounded to one decimal
	// as the original dashboard showed it.
	Minutes float64 `json:"minutes,omitempty"`
}

// TopList bundles both orderings of one entity type for the stats endpoint.
type TopList struct {
	Time  []EntityAggregate `json:"time"`
	Count []EntityAggregate `json:"count"`
}

// AllTimeStats is the full stats payload: top-N per entity type, both
// orderings.
type AllTimeStats struct {
	Artists TopList `json:"artists"`
	Songs   TopList `json:"songs"`
	Albums  TopList `json:"albums"`
}
