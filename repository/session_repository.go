package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ReplayFM/model"

	"gorm.io/gorm"
)

// SessionRepository defines storage operations for sessions. Implemented on
// GORM; the event and aggregate tables stay on raw SQL.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	// GetByID returns (nil, nil) when the session does not exist.
	GetByID(ctx context.Context, id string) (*model.Session, error)
	UpdateState(ctx context.Context, id string, state model.SessionState) error
	// ListExpired returns sessions past their expiry that are not yet marked
	// EXPIRED, for the background sweeper.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Session, error)
}

// gormSessionRepository implements SessionRepository.
type gormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new instance of gormSessionRepository.
func NewGormSessionRepository(db *gorm.DB) SessionRepository {
	return &gormSessionRepository{db: db}
}

func (r *gormSessionRepository) Create(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}
	return nil
}

func (r *gormSessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return &session, nil
}

func (r *gormSessionRepository) UpdateState(ctx context.Context, id string, state model.SessionState) error {
	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Update("state", state)
	if res.Error != nil {
		return fmt.Errorf("failed to update session %s state: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s not found for state update", id)
	}
	return nil
}

func (r *gormSessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Where("expires_at <= ? AND state <> ?", now, model.SessionExpired).
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return sessions, nil
}
