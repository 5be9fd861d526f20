// Package reports stores per-game abuse reports and the global exclusion
// set that removes a team's game from leaderboard and matchmaking.
package reports

import (
	"context"

	"github.com/google/uuid"
)

// Short reasons accepted by the report surface.
const (
	ReasonUnclear = "unclear"
	ReasonBuggy   = "buggy"
	ReasonOther   = "other"
)

// ValidShortReason reports whether the short reason is one of the accepted
// values.
func ValidShortReason(reason string) bool {
	switch reason {
	case ReasonUnclear, ReasonBuggy, ReasonOther:
		return true
	}
	return false
}

// Report is one voter complaint about a game.
type Report struct {
	Session     uuid.UUID `json:"session"`
	ShortReason string    `json:"short_reason"`
	Reason      string    `json:"reason"`
	// Output optionally carries a base64 snapshot of the game's PTY
	// transcript at report time.
	Output string `json:"output,omitempty"`
	Author string `json:"author"`
}

// Store is the append-only report log plus the exclusion set.
type Store interface {
	// Get returns every report filed against the team, oldest first.
	Get(ctx context.Context, teamID string) ([]Report, error)
	// Append adds a report and returns the new report count for the team.
	Append(ctx context.Context, teamID string, report Report) (int, error)
	// Delete removes all reports for the team.
	Delete(ctx context.Context, teamID string) error

	// Exclude removes the team from leaderboard and matchmaking.
	Exclude(ctx context.Context, teamID string) error
	// Include reverses Exclude.
	Include(ctx context.Context, teamID string) error
	// IsExcluded reports whether the team is currently excluded.
	IsExcluded(ctx context.Context, teamID string) (bool, error)
	// ExcludedGames returns the current exclusion set.
	ExcludedGames(ctx context.Context) (map[string]struct{}, error)
}
