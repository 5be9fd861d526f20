package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/game"
	"gamebattle/arena/internal/logging"
	"gamebattle/arena/internal/pairing"
	"gamebattle/arena/internal/sandbox"
)

// ManagerOptions configures a Manager. Zero values fall back to safe
// defaults.
type ManagerOptions struct {
	Runtime            game.Runtime
	Catalogue          pairing.Catalogue
	MaxSessionsPerUser int
	TTL                time.Duration
	Limits             sandbox.Limits
	// OnStop runs just before a session's containers are torn down, while
	// their accumulated output is still reachable. Best effort.
	OnStop func(id uuid.UUID, s *Session)
	Logger *zerolog.Logger
}

// Manager is the process-wide session registry. All registry mutations
// serialise on one mutex; container I/O never happens under it.
type Manager struct {
	runtime   game.Runtime
	catalogue pairing.Catalogue
	maxPer    int
	ttl       time.Duration
	limits    sandbox.Limits
	onStop    func(id uuid.UUID, s *Session)
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	timers   map[uuid.UUID]*time.Timer
}

// NewManager constructs an empty registry.
func NewManager(opts ManagerOptions) *Manager {
	if opts.MaxSessionsPerUser <= 0 {
		opts.MaxSessionsPerUser = 1
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	log := logging.Component("session")
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Manager{
		runtime:   opts.Runtime,
		catalogue: opts.Catalogue,
		maxPer:    opts.MaxSessionsPerUser,
		ttl:       opts.TTL,
		limits:    opts.Limits,
		onStop:    opts.OnStop,
		log:       log,
		sessions:  make(map[uuid.UUID]*Session),
		timers:    make(map[uuid.UUID]*time.Timer),
	}
}

// Create launches a new session for the owner using the given strategy.
// The per-user quota is reserved before containers start so concurrent
// creates cannot overshoot it.
func (m *Manager) Create(ctx context.Context, owner string, strategy pairing.Strategy, capacity int) (uuid.UUID, *Session, error) {
	id := uuid.New()

	// 1.- Reserve the slot under the lock with a placeholder entry.
	m.mu.Lock()
	count := 0
	for _, s := range m.sessions {
		if s != nil && s.owner == owner {
			count++
		}
	}
	if count >= m.maxPer {
		m.mu.Unlock()
		return uuid.Nil, nil, fault.ErrQuotaExceeded
	}
	m.sessions[id] = &Session{owner: owner}
	m.mu.Unlock()

	// 2.- Launch outside the lock; container startup is slow.
	launched, err := Launch(ctx, owner, m.catalogue, strategy, m.runtime, capacity, m.limits)
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return uuid.Nil, nil, err
	}

	m.mu.Lock()
	m.sessions[id] = launched
	m.timers[id] = time.AfterFunc(m.ttl, func() { m.expire(id) })
	m.mu.Unlock()

	m.log.Info().Str("session", id.String()).Str("owner", owner).Msg("session created")
	return id, launched, nil
}

// Get returns the session only when the owner matches; a mismatch is
// indistinguishable from a missing session.
func (m *Manager) Get(owner string, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.owner != owner || len(s.games) == 0 {
		return nil, fault.NotFoundf("session %s", id)
	}
	return s, nil
}

// GetGame resolves a game by presentation index within an owned session.
func (m *Manager) GetGame(owner string, id uuid.UUID, index int) (*game.Game, error) {
	s, err := m.Get(owner, id)
	if err != nil {
		return nil, err
	}
	return s.Game(index)
}

// ReplaceGame swaps one game in an owned session for a strategy-picked
// replacement, using the manager's runtime and limits.
func (m *Manager) ReplaceGame(ctx context.Context, owner string, id uuid.UUID, index int, strategy pairing.Strategy) error {
	s, err := m.Get(owner, id)
	if err != nil {
		return err
	}
	return s.ReplaceGame(ctx, index, m.catalogue, strategy, m.runtime, m.limits)
}

// UserSessions lists the ids of every live session belonging to the owner.
func (m *Manager) UserSessions(owner string) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, s := range m.sessions {
		if s.owner == owner && len(s.games) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Stop tears the session down and removes it from the registry. An empty
// owner skips the ownership check; expiry and shutdown use that path.
func (m *Manager) Stop(ctx context.Context, owner string, id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || (owner != "" && s.owner != owner) {
		m.mu.Unlock()
		return fault.NotFoundf("session %s", id)
	}
	delete(m.sessions, id)
	if timer, ok := m.timers[id]; ok {
		timer.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()

	if m.onStop != nil {
		m.onStop(id, s)
	}
	s.Stop(ctx)
	m.log.Info().Str("session", id.String()).Msg("session stopped")
	return nil
}

// StopAll tears down every live session; used on shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(ctx, "", id); err != nil {
			m.log.Warn().Err(err).Str("session", id.String()).Msg("stop during shutdown")
		}
	}
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) expire(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.Stop(ctx, "", id); err != nil {
		// Already stopped explicitly; nothing to do.
		return
	}
	m.log.Info().Str("session", id.String()).Msg("session expired")
}
