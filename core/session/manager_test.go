package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"ReplayFM/apperr"
	"ReplayFM/model"
	"ReplayFM/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) UpdateState(_ context.Context, id string, state model.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return apperr.NotFound("session %s not found for state update", id)
	}
	s.State = state
	return nil
}

func (r *memSessionRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Session
	for _, s := range r.sessions {
		if len(out) >= limit {
			break
		}
		if !s.ExpiresAt.After(now) && s.State != model.SessionExpired {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) state(id string) model.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id].State
}

type fakeEventStore struct {
	repository.EventRepository
	purged []string
}

func (f *fakeEventStore) PurgeSession(_ context.Context, sessionID string) error {
	f.purged = append(f.purged, sessionID)
	return nil
}

type spyPurger struct{ sessions []string }

func (p *spyPurger) DeleteSession(_ context.Context, id string) error {
	p.sessions = append(p.sessions, id)
	return nil
}

func (p *spyPurger) RemoveSessionArchives(_ context.Context, id string) error {
	p.sessions = append(p.sessions, id)
	return nil
}

func (p *spyPurger) InvalidateSession(_ context.Context, id string) error {
	p.sessions = append(p.sessions, id)
	return nil
}

func newTestManager(repo *memSessionRepo, store *fakeEventStore, ttl time.Duration) *Manager {
	return NewManager(repo, store, &spyPurger{}, &spyPurger{}, &spyPurger{},
		NewTokenSigner("test-secret"), ttl)
}

func TestCreateIssuesUsableSessionAndToken(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	m := newTestManager(repo, &fakeEventStore{}, time.Hour)

	s, token, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCreated, s.State)
	assert.NotEmpty(t, token)

	got, err := m.Require(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	resolved, err := m.ResolveToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, resolved.ID)
}

func TestRequireUnknownSession(t *testing.T) {
	m := newTestManager(newMemSessionRepo(), &fakeEventStore{}, time.Hour)

	_, err := m.Require(context.Background(), "no-such-session")
	assert.True(t, apperr.IsNotFound(err))
}

func TestRequireExpiredSessionMarksIt(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	m := newTestManager(repo, &fakeEventStore{}, time.Hour)

	s, _, err := m.Create(ctx)
	require.NoError(t, err)

	// jump the clock past the TTL
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = m.Require(ctx, s.ID)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, model.SessionExpired, repo.state(s.ID))
}

func TestResolveTokenRejectsTampering(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	m := newTestManager(repo, &fakeEventStore{}, time.Hour)

	_, token, err := m.Create(ctx)
	require.NoError(t, err)

	_, err = m.ResolveToken(ctx, token+"x")
	assert.True(t, apperr.IsNotFound(err))

	other := NewTokenSigner("different-secret")
	forged, err := other.Issue("whatever", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = m.ResolveToken(ctx, forged)
	assert.True(t, apperr.IsNotFound(err))
}

func TestClearPurgesAndStaysUsable(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	store := &fakeEventStore{}
	chunks := &spyPurger{}
	archives := &spyPurger{}
	caches := &spyPurger{}
	m := NewManager(repo, store, chunks, archives, caches,
		NewTokenSigner("test-secret"), time.Hour)

	s, _, err := m.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, m.MarkPopulated(ctx, s.ID))

	require.NoError(t, m.Clear(ctx, s.ID))

	assert.Equal(t, []string{s.ID}, store.purged)
	assert.Equal(t, []string{s.ID}, chunks.sessions)
	assert.Equal(t, []string{s.ID}, archives.sessions)
	assert.Equal(t, []string{s.ID}, caches.sessions)
	assert.Equal(t, model.SessionCleared, repo.state(s.ID))

	// a cleared session accepts fresh ingestion
	_, err = m.Require(ctx, s.ID)
	require.NoError(t, err)
	require.NoError(t, m.MarkPopulated(ctx, s.ID))
	assert.Equal(t, model.SessionPopulated, repo.state(s.ID))
}

func TestClearUnknownSession(t *testing.T) {
	m := newTestManager(newMemSessionRepo(), &fakeEventStore{}, time.Hour)

	err := m.Clear(context.Background(), "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestSweepExpiredPurges(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	store := &fakeEventStore{}
	m := newTestManager(repo, store, time.Hour)

	live, _, err := m.Create(ctx)
	require.NoError(t, err)

	stale := &model.Session{
		ID:        "stale",
		State:     model.SessionPopulated,
		CreatedAt: time.Now().Add(-3 * time.Hour),
		ExpiresAt: time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, stale))

	swept, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Equal(t, []string{"stale"}, store.purged)
	assert.Equal(t, model.SessionExpired, repo.state("stale"))

	// the live session is untouched
	_, err = m.Require(ctx, live.ID)
	assert.NoError(t, err)
}

func TestLockSerializesPerSession(t *testing.T) {
	m := newTestManager(newMemSessionRepo(), &fakeEventStore{}, time.Hour)

	unlockA := m.Lock("a")
	// a different session's lock is independent and acquirable immediately
	unlockB := m.Lock("b")
	unlockB()

	released := make(chan struct{})
	go func() {
		unlock := m.Lock("a")
		unlock()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("second Lock(a) acquired while first was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("second Lock(a) never acquired after release")
	}
}
