// Package fault defines the transport-independent error taxonomy shared by
// every arena subsystem. Handlers translate these sentinels into HTTP status
// codes; the core only ever wraps them.
package fault

import "github.com/pkg/errors"

var (
	// ErrNotFound covers absent sessions, games, teams, preferences and
	// reports. Owner mismatches fold into it so session IDs do not leak.
	ErrNotFound = errors.New("not found")
	// ErrQuotaExceeded signals that the caller already holds the maximum
	// number of live sessions.
	ErrQuotaExceeded = errors.New("too many sessions")
	// ErrCapacityExceeded signals that the runtime cannot allocate another
	// container.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrNoGamesAvailable signals that a pairing strategy produced an empty
	// selection.
	ErrNoGamesAvailable = errors.New("no games available")
	// ErrInvalidInput covers malformed filenames, oversized uploads and
	// unexpected request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAuthRequired signals a missing bearer token.
	ErrAuthRequired = errors.New("authentication required")
	// ErrAuthInvalid signals a rejected bearer token.
	ErrAuthInvalid = errors.New("invalid token")
	// ErrForbidden signals a non-admin touching an admin surface or a
	// self-referential action disallowed by policy.
	ErrForbidden = errors.New("forbidden")
	// ErrRuntimeUnavailable signals that the container daemon or a backing
	// store is unreachable after retries.
	ErrRuntimeUnavailable = errors.New("runtime unavailable")
	// ErrCompetitionDisabled signals an operation that requires competition
	// mode while it is switched off.
	ErrCompetitionDisabled = errors.New("competition disabled")
	// ErrGamebattle covers domain rule violations with a human-readable
	// message, e.g. "can only own one game at a time".
	ErrGamebattle = errors.New("gamebattle error")
)

// Gamebattlef wraps ErrGamebattle with a formatted, user-facing message.
func Gamebattlef(format string, args ...any) error {
	return errors.Wrapf(ErrGamebattle, format, args...)
}

// NotFoundf wraps ErrNotFound with context about the missing entity.
func NotFoundf(format string, args ...any) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

// Invalidf wraps ErrInvalidInput with the validation failure detail.
func Invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}
