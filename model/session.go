package model

import "time"

// SessionState tracks where a session is in its lifecycle.
type SessionState string

const (
	SessionCreated   SessionState = "CREATED"   // allocated, no data yet
	SessionPopulated SessionState = "POPULATED" // at least one committed ingestion
	SessionCleared   SessionState = "CLEARED"   // explicitly reset, equivalent to CREATED
	SessionExpired   SessionState = "EXPIRED"   // past its TTL, unusable
)

// Session is the isolation boundary for one uploaded dataset. Every event and
// aggregate row is keyed by its ID.
type Session struct {
	ID        string       `json:"id" gorm:"primaryKey;size:36"`
	State     SessionState `json:"state" gorm:"size:16;not null"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	ExpiresAt time.Time    `json:"expiresAt" gorm:"index"`
}

// TableName keeps the GORM table name in line with the SQL schema.
func (Session) TableName() string {
	return "sessions"
}

// Usable reports whether operations may run against this session at the
// given instant.
func (s *Session) Usable(now time.Time) bool {
	if s.State == SessionExpired {
		return false
	}
	return now.Before(s.ExpiresAt)
}
