package rating

import (
	"context"
	"sort"

	"gamebattle/arena/internal/games"
	"gamebattle/arena/internal/pairing"
)

// Pair is the information-gain pairing strategy. It prefers close-rated,
// seldom-played pairs among the games the requester may still judge.
func (e *Engine) Pair(ctx context.Context, cat pairing.Catalogue, capacity int, requester string, avoid map[string]struct{}) ([]games.Meta, error) {
	requester = games.NormalizeEmail(requester)

	excluded, err := e.reports.ExcludedGames(ctx)
	if err != nil {
		return nil, err
	}

	// 1.- Filter the catalogue down to games this voter can still judge.
	var available []games.Meta
	for _, meta := range cat.Games() {
		if e.roster.Owns(requester, meta.TeamID) {
			continue
		}
		if _, skip := avoid[meta.TeamID]; skip {
			continue
		}
		if _, out := excluded[meta.TeamID]; out {
			continue
		}
		if e.hasSeen(requester, meta.TeamID) {
			continue
		}
		reported, err := e.reports.Get(ctx, meta.TeamID)
		if err != nil {
			return nil, err
		}
		alreadyReported := false
		for _, report := range reported {
			if games.NormalizeEmail(report.Author) == requester {
				alreadyReported = true
				break
			}
		}
		if alreadyReported {
			continue
		}
		available = append(available, meta)
	}
	if len(available) < 2 {
		return nil, nil
	}

	// 2.- Score every ordered pair and sort best-first, stable on ties.
	type scoredPair struct {
		first, second games.Meta
		score         float64
	}
	var pairs []scoredPair
	for _, x := range available {
		for _, y := range available {
			if x.TeamID == y.TeamID {
				continue
			}
			pairs = append(pairs, scoredPair{first: x, second: y, score: e.pairLikelihood(x.TeamID, y.TeamID)})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	// 3.- Flatten and truncate; the top pair naturally fills capacity 2.
	var picks []games.Meta
	for _, pair := range pairs {
		picks = append(picks, pair.first, pair.second)
		if len(picks) >= capacity {
			break
		}
	}
	if len(picks) > capacity {
		picks = picks[:capacity]
	}
	return picks, nil
}

// pairLikelihood rewards rating proximity and penalises accumulated runs.
func (e *Engine) pairLikelihood(a, b string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ra, ok := e.ratings[a]
	if !ok {
		ra = e.initial
	}
	rb, ok := e.ratings[b]
	if !ok {
		rb = e.initial
	}
	diff := ra - rb
	if diff < 0 {
		diff = -diff
	}
	return diff/200 - float64(e.runs[a]+e.runs[b])
}

func (e *Engine) hasSeen(voter, teamID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	seen, ok := e.seen[voter]
	if !ok {
		return false
	}
	_, dup := seen[teamID]
	return dup
}
