// Package session owns the short-lived pairs of running games a voter
// judges, plus the process-wide registry with quotas and TTL expiry.
package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/game"
	"gamebattle/arena/internal/pairing"
	"gamebattle/arena/internal/sandbox"
)

// Public is the voter-facing session view.
type Public struct {
	Owner      string        `json:"owner"`
	LaunchTime float64       `json:"launch_time"`
	Games      []game.Public `json:"games"`
}

// Session is an ordered list of one or two games owned by a single voter.
// The list is shuffled at launch so A/B presentation carries no bias.
type Session struct {
	owner      string
	launchTime time.Time

	mu    sync.Mutex
	games []*game.Game
}

// Launch asks the strategy for games, starts them and shuffles the result.
func Launch(ctx context.Context, owner string, cat pairing.Catalogue, strategy pairing.Strategy, runtime game.Runtime, capacity int, limits sandbox.Limits) (*Session, error) {
	metas, err := strategy(ctx, cat, capacity, owner, nil)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, fault.ErrNoGamesAvailable
	}

	started := make([]*game.Game, 0, len(metas))
	for _, meta := range metas {
		g, err := game.Start(ctx, meta, runtime, limits)
		if err != nil {
			// 1.- Roll the already-started games back; the session never
			// existed as far as callers are concerned.
			for _, prev := range started {
				prev.Stop(ctx)
			}
			return nil, err
		}
		started = append(started, g)
	}
	rand.Shuffle(len(started), func(i, j int) {
		started[i], started[j] = started[j], started[i]
	})

	return &Session{owner: owner, launchTime: time.Now(), games: started}, nil
}

// Owner returns the owning voter's email.
func (s *Session) Owner() string { return s.owner }

// LaunchTime returns when the session was created.
func (s *Session) LaunchTime() time.Time { return s.launchTime }

// Games snapshots the current presentation-ordered game list.
func (s *Session) Games() []*game.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*game.Game(nil), s.games...)
}

// Game returns the game at the presentation index.
func (s *Session) Game(index int) (*game.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.games) {
		return nil, fault.NotFoundf("game %d", index)
	}
	return s.games[index], nil
}

// ReplaceGame stops the game at index and launches a replacement picked by
// the strategy with every current team id in the avoid set, so the session
// can never pair a game against itself. Presentation order of the other
// games is preserved.
func (s *Session) ReplaceGame(ctx context.Context, index int, cat pairing.Catalogue, strategy pairing.Strategy, runtime game.Runtime, limits sandbox.Limits) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.games) {
		s.mu.Unlock()
		return fault.NotFoundf("game %d", index)
	}
	avoid := make(map[string]struct{}, len(s.games))
	for _, g := range s.games {
		avoid[g.Meta().TeamID] = struct{}{}
	}
	old := s.games[index]
	s.mu.Unlock()

	metas, err := strategy(ctx, cat, 1, s.owner, avoid)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		return fault.ErrNoGamesAvailable
	}

	old.Stop(ctx)
	replacement, err := game.Start(ctx, metas[0], runtime, limits)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.games[index] = replacement
	s.mu.Unlock()
	return nil
}

// Stop terminates every game sequentially, best effort.
func (s *Session) Stop(ctx context.Context) {
	for _, g := range s.Games() {
		g.Stop(ctx)
	}
}

// Over reports whether every game in the session has exited.
func (s *Session) Over() bool {
	for _, g := range s.Games() {
		if g.Running() {
			return false
		}
	}
	return true
}

// PublicView renders the session for the API.
func (s *Session) PublicView() Public {
	games := s.Games()
	public := Public{
		Owner:      s.owner,
		LaunchTime: float64(s.launchTime.UnixNano()) / float64(time.Second),
		Games:      make([]game.Public, 0, len(games)),
	}
	for _, g := range games {
		public.Games = append(public.Games, g.PublicView())
	}
	return public
}
