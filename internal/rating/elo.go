// Package rating maintains the Elo-style leaderboard derived from the
// preference log and picks information-maximising matchups. Ratings are a
// pure function of the ordered log; edits are handled by replaying it.
package rating

import (
	"context"
	"math"
	"sort"
	"sync"

	"gamebattle/arena/internal/games"
	"gamebattle/arena/internal/pairing"
	"gamebattle/arena/internal/prefs"
	"gamebattle/arena/internal/reports"
)

const (
	// DefaultK is the Elo K-factor.
	DefaultK = 32
	// DefaultInitial is the rating assigned to unseen games.
	DefaultInitial = 1000
)

// Rating is one leaderboard row.
type Rating struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Engine implements prefs.RatingSystem and the elo_pair strategy.
type Engine struct {
	k       float64
	initial float64
	roster  *games.Roster
	reports reports.Store

	mu      sync.RWMutex
	ratings map[string]float64
	runs    map[string]int
	// seen records which games each voter has already rated, keyed by
	// normalised email. A voter's later votes touching a seen game are
	// recorded but never counted.
	seen map[string]map[string]struct{}
}

// NewEngine constructs an engine with the default constants.
func NewEngine(roster *games.Roster, reportStore reports.Store) *Engine {
	return &Engine{
		k:       DefaultK,
		initial: DefaultInitial,
		roster:  roster,
		reports: reportStore,
		ratings: make(map[string]float64),
		runs:    make(map[string]int),
		seen:    make(map[string]map[string]struct{}),
	}
}

// Clear resets all derived state. Part of prefs.RatingSystem.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ratings = make(map[string]float64)
	e.runs = make(map[string]int)
	e.seen = make(map[string]map[string]struct{})
	return nil
}

// Register folds one preference into the ratings. A preference counts only
// when the author owns neither game and has rated neither before; the pair
// is always recorded against the voter either way.
func (e *Engine) Register(ctx context.Context, pref prefs.Preference) error {
	author := games.NormalizeEmail(pref.Author)
	a, b := pref.Games[0], pref.Games[1]

	e.mu.Lock()
	defer e.mu.Unlock()

	counted := !e.roster.Owns(author, a) && !e.roster.Owns(author, b)
	if seen, ok := e.seen[author]; ok {
		if _, dup := seen[a]; dup {
			counted = false
		}
		if _, dup := seen[b]; dup {
			counted = false
		}
	}

	// 1.- Record the pair regardless, so repeat votes stay inert.
	seen := e.seen[author]
	if seen == nil {
		seen = make(map[string]struct{})
		e.seen[author] = seen
	}
	seen[a] = struct{}{}
	seen[b] = struct{}{}

	if !counted {
		return nil
	}

	// 2.- Standard Elo update with the logistic expectation on a 400 scale.
	ra := e.ratingLocked(a)
	rb := e.ratingLocked(b)
	expectedA := 1 / (1 + math.Pow(10, (rb-ra)/400))
	expectedB := 1 - expectedA

	e.ratings[a] = ra + e.k*(pref.FirstScore-expectedA)
	e.ratings[b] = rb + e.k*((1-pref.FirstScore)-expectedB)
	e.runs[a]++
	e.runs[b]++

	// 3.- Shift everything up if any rating dipped below zero; relative
	// differences are preserved.
	min := math.Inf(1)
	for _, score := range e.ratings {
		min = math.Min(min, score)
	}
	if min < 0 {
		for id := range e.ratings {
			e.ratings[id] -= min
		}
	}
	return nil
}

func (e *Engine) ratingLocked(teamID string) float64 {
	if score, ok := e.ratings[teamID]; ok {
		return score
	}
	e.ratings[teamID] = e.initial
	return e.initial
}

// Score returns the rating and play count for a team, defaulting the rating
// for unseen teams.
func (e *Engine) Score(teamID string) (float64, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	score, ok := e.ratings[teamID]
	if !ok {
		score = e.initial
	}
	return score, e.runs[teamID]
}

// ScoreIfExists returns the rating only when the team has one.
func (e *Engine) ScoreIfExists(teamID string) (float64, int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	score, ok := e.ratings[teamID]
	return score, e.runs[teamID], ok
}

// Top returns the leaderboard: catalogue games with ratings, excluded teams
// filtered out, sorted by score descending.
func (e *Engine) Top(ctx context.Context, cat pairing.Catalogue) ([]Rating, error) {
	excluded, err := e.reports.ExcludedGames(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	var top []Rating
	for _, meta := range cat.Games() {
		score, ok := e.ratings[meta.TeamID]
		if !ok {
			continue
		}
		if _, out := excluded[meta.TeamID]; out {
			continue
		}
		top = append(top, Rating{Name: meta.Name, Score: score})
	}
	e.mu.RUnlock()

	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	return top, nil
}

// Report appends a report against a game and returns the new count.
func (e *Engine) Report(ctx context.Context, meta games.Meta, report reports.Report) (int, error) {
	return e.reports.Append(ctx, meta.TeamID, report)
}

// FetchReports lists the reports filed against a team.
func (e *Engine) FetchReports(ctx context.Context, teamID string) ([]reports.Report, error) {
	return e.reports.Get(ctx, teamID)
}
