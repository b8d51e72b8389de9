package session

import (
	"context"
	"sync"
	"time"

	"ReplayFM/apperr"
	"ReplayFM/logger"
	"ReplayFM/model"
	"ReplayFM/repository"

	"github.com/google/uuid"
)

// ChunkPurger drops buffered upload chunks of a session.
type ChunkPurger interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

// ArchivePurger drops archived raw exports of a session.
type ArchivePurger interface {
	RemoveSessionArchives(ctx context.Context, sessionID string) error
}

// CachePurger drops cached aggregate results of a session.
type CachePurger interface {
	InvalidateSession(ctx context.Context, sessionID string) error
}

// Manager owns the session lifecycle: creation, population, clearing and
// expiry. Every store, aggregation and query operation goes through Require
// first, so an unknown or expired session is always a NotFound, never a
// crash.
type Manager struct {
	sessions repository.SessionRepository
	store    repository.EventRepository
	chunks   ChunkPurger   // optional
	archives ArchivePurger // optional
	caches   CachePurger   // optional
	signer   *TokenSigner
	ttl      time.Duration

	// one mutex per live session id serializes ingestion and recompute;
	// sessions never share a lock, so they never block each other.
	locks sync.Map

	now func() time.Time
}

// NewManager creates a session manager. The purger dependencies may be nil
// (the import CLI runs without Redis or MinIO).
func NewManager(sessions repository.SessionRepository, store repository.EventRepository,
	chunks ChunkPurger, archives ArchivePurger, caches CachePurger,
	signer *TokenSigner, ttl time.Duration) *Manager {
	return &Manager{
		sessions: sessions,
		store:    store,
		chunks:   chunks,
		archives: archives,
		caches:   caches,
		signer:   signer,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create allocates a new empty session and returns it with a signed token.
func (m *Manager) Create(ctx context.Context) (*model.Session, string, error) {
	now := m.now().UTC()
	session := &model.Session{
		ID:        uuid.NewString(),
		State:     model.SessionCreated,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, "", err
	}

	token := ""
	if m.signer != nil {
		var err error
		token, err = m.signer.Issue(session.ID, session.ExpiresAt)
		if err != nil {
			return nil, "", err
		}
	}

	logger.Info("Session created",
		logger.String("sessionId", session.ID),
		logger.Any("expiresAt", session.ExpiresAt))
	return session, token, nil
}

// Require loads a session and fails with NotFound when it is unknown or
// expired. A session found past its expiry is marked EXPIRED on the way.
func (m *Manager) Require(ctx context.Context, id string) (*model.Session, error) {
	session, err := m.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.NotFound("session %s does not exist", id)
	}

	if !session.Usable(m.now()) {
		if session.State != model.SessionExpired {
			if err := m.sessions.UpdateState(ctx, id, model.SessionExpired); err != nil {
				logger.Warn("Failed to mark session expired",
					logger.String("sessionId", id), logger.ErrorField(err))
			}
		}
		return nil, apperr.NotFound("session %s has expired", id)
	}
	return session, nil
}

// ResolveToken maps a signed session token back to a usable session.
func (m *Manager) ResolveToken(ctx context.Context, token string) (*model.Session, error) {
	if m.signer == nil {
		return nil, apperr.NotFound("session tokens are not enabled")
	}
	id, err := m.signer.Verify(token)
	if err != nil {
		return nil, err
	}
	return m.Require(ctx, id)
}

// MarkPopulated transitions a session to POPULATED after its first
// committed ingestion. Idempotent.
func (m *Manager) MarkPopulated(ctx context.Context, id string) error {
	return m.sessions.UpdateState(ctx, id, model.SessionPopulated)
}

// Lock serializes ingestion-or-aggregation for one session and returns the
// unlock function. Reads do not take this lock; they rely on the store's
// transaction isolation.
func (m *Manager) Lock(id string) func() {
	mu, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

// Clear purges all events, aggregates, chunk buffers, archives and caches of
// a session. The durable purge is one transaction; a partially cleared
// session is never observable.
func (m *Manager) Clear(ctx context.Context, id string) error {
	if _, err := m.Require(ctx, id); err != nil {
		return err
	}

	unlock := m.Lock(id)
	defer unlock()

	if err := m.store.PurgeSession(ctx, id); err != nil {
		return err
	}
	if err := m.sessions.UpdateState(ctx, id, model.SessionCleared); err != nil {
		return err
	}

	// Best-effort cleanup of the derived side channels; all of them are
	// rebuilt or expire on their own.
	if m.chunks != nil {
		if err := m.chunks.DeleteSession(ctx, id); err != nil {
			logger.Warn("Failed to drop chunk buffers", logger.String("sessionId", id), logger.ErrorField(err))
		}
	}
	if m.archives != nil {
		if err := m.archives.RemoveSessionArchives(ctx, id); err != nil {
			logger.Warn("Failed to drop archives", logger.String("sessionId", id), logger.ErrorField(err))
		}
	}
	if m.caches != nil {
		if err := m.caches.InvalidateSession(ctx, id); err != nil {
			logger.Warn("Failed to invalidate stats cache", logger.String("sessionId", id), logger.ErrorField(err))
		}
	}

	logger.Info("Session cleared", logger.String("sessionId", id))
	return nil
}

// SweepExpired expires and purges sessions past their TTL. Returns how many
// sessions were swept.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	expired, err := m.sessions.ListExpired(ctx, m.now(), 100)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, s := range expired {
		unlock := m.Lock(s.ID)
		if err := m.store.PurgeSession(ctx, s.ID); err != nil {
			unlock()
			logger.Error("Failed to purge expired session",
				logger.String("sessionId", s.ID), logger.ErrorField(err))
			continue
		}
		if err := m.sessions.UpdateState(ctx, s.ID, model.SessionExpired); err != nil {
			unlock()
			logger.Error("Failed to mark session expired",
				logger.String("sessionId", s.ID), logger.ErrorField(err))
			continue
		}
		unlock()
		m.locks.Delete(s.ID)
		swept++
	}

	if swept > 0 {
		logger.Info("Swept expired sessions", logger.Int("count", swept))
	}
	return swept, nil
}

// StartSweeper runs SweepExpired on an interval until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.SweepExpired(ctx); err != nil {
					logger.Error("Session sweep failed", logger.ErrorField(err))
				}
			}
		}
	}()
}
