package model

// QueryIntent is the structured statistical question produced by the external
// text interpreter. Any field may be empty; validation happens at the
// resolver boundary, not here.
type QueryIntent struct {
	EntityType string `json:"entityType"` // song | artist | album | ""
	Track      string `json:"track"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Metric     string `json:"metric"`    // time | count, default time
	Timeframe  string `json:"timeframe"` // 4-digit year | "all", default "all"
	TimeUnit   string `json:"timeUnit"`  // minutes | hours, default hours
}

// QueryResult answers one intent. Zero matches is a normal result with
// NoData set, never an error.
type QueryResult struct {
	Value             float64 `json:"value"`
	Unit              string  `json:"unit"` // minutes | hours | plays
	MatchedEntityName string  `json:"matchedEntityName"`
	Timeframe         string  `json:"timeframe"`
	NoData            bool    `json:"noData"`
}
