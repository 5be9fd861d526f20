// Package pairing defines the strategy contract used to pick which games a
// session launches, plus the basic strategies. The information-gain pairing
// lives on the rating engine and satisfies the same contract.
package pairing

import (
	"context"
	"math/rand"

	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/games"
)

// Catalogue is the read-only view of the launcher's game list.
type Catalogue interface {
	Games() []games.Meta
	Get(teamID string) (games.Meta, bool)
}

// Strategy picks an ordered list of games for a requester. Implementations
// must never return a game whose team id is in avoid.
type Strategy func(ctx context.Context, cat Catalogue, capacity int, requester string, avoid map[string]struct{}) ([]games.Meta, error)

// Random uniformly samples capacity distinct games the requester does not
// own and that are not in the avoid set.
func Random(roster *games.Roster) Strategy {
	return func(ctx context.Context, cat Catalogue, capacity int, requester string, avoid map[string]struct{}) ([]games.Meta, error) {
		var available []games.Meta
		for _, meta := range cat.Games() {
			if roster.Owns(requester, meta.TeamID) {
				continue
			}
			if _, skip := avoid[meta.TeamID]; skip {
				continue
			}
			available = append(available, meta)
		}
		if len(available) < capacity {
			return nil, nil
		}
		rand.Shuffle(len(available), func(i, j int) {
			available[i], available[j] = available[j], available[i]
		})
		return available[:capacity], nil
	}
}

// Own returns the requester's own team's game. Only a capacity of one is
// supported.
func Own(roster *games.Roster) Strategy {
	return func(ctx context.Context, cat Catalogue, capacity int, requester string, avoid map[string]struct{}) ([]games.Meta, error) {
		if capacity > 1 {
			return nil, fault.Gamebattlef("can only own one game at a time")
		}
		team := roster.TeamOf(requester)
		if team == nil {
			return nil, fault.Gamebattlef("no games available")
		}
		meta, ok := cat.Get(team.ID)
		if !ok {
			return nil, fault.Gamebattlef("no games available")
		}
		return []games.Meta{meta}, nil
	}
}

// Specified returns exactly the named game; admin use.
func Specified(teamID string) Strategy {
	return func(ctx context.Context, cat Catalogue, capacity int, requester string, avoid map[string]struct{}) ([]games.Meta, error) {
		meta, ok := cat.Get(teamID)
		if !ok {
			return nil, fault.NotFoundf("game %q", teamID)
		}
		return []games.Meta{meta}, nil
	}
}
