// Package prefs persists the votes between session games. The preference
// log is the source of truth for ratings: bound rating systems are rebuilt
// from it whenever an entry is edited or deleted.
package prefs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Preference is one vote between the two games of a session, keyed by the
// session id. Games holds the team ids in the session's presentation order;
// FirstScore is 1 when the first game is strictly preferred.
type Preference struct {
	Games      [2]string
	FirstScore float64
	Author     string
	Timestamp  time.Time
}

// Accumulation is the weight one preference contributes towards a voter's
// participation requirement.
func (Preference) Accumulation() float64 { return 1 }

// RatingSystem consumes the preference log. The store pushes events one-way;
// rating systems never reach back into the store.
type RatingSystem interface {
	// Register folds one preference into the ratings.
	Register(ctx context.Context, pref Preference) error
	// Clear resets the system before a replay.
	Clear(ctx context.Context) error
}

// Store is the durable preference log.
type Store interface {
	// Get returns the preference for a session, or ok=false.
	Get(ctx context.Context, session uuid.UUID) (Preference, bool, error)
	// Set records a vote. Overwriting an existing key is an edit and
	// triggers a full rebuild of every bound rating system; a fresh key
	// emits a single register event.
	Set(ctx context.Context, session uuid.UUID, pref Preference) error
	// Delete removes a vote and triggers a full rebuild.
	Delete(ctx context.Context, session uuid.UUID) error
	// SortedPreferences returns the log ordered by timestamp ascending,
	// ties broken by insertion order.
	SortedPreferences(ctx context.Context) ([]Preference, error)
	// AccumulationBy sums the accumulation of one author's votes.
	AccumulationBy(ctx context.Context, email string) (float64, error)
	// AllAccumulations sums accumulation per author.
	AllAccumulations(ctx context.Context) (map[string]float64, error)
	// Bind subscribes a rating system and replays the current log into it.
	Bind(ctx context.Context, system RatingSystem) error
}

// Rebuild clears the system and replays the given preferences in order.
// It is the only authoritative way to reconstruct rating state.
func Rebuild(ctx context.Context, system RatingSystem, log []Preference) error {
	if err := system.Clear(ctx); err != nil {
		return err
	}
	for _, pref := range log {
		if err := system.Register(ctx, pref); err != nil {
			return err
		}
	}
	return nil
}
