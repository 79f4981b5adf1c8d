package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for session resolution and profile provisioning. Callers
// classify with errors.Is; the concrete cause stays attached via wrapping.
var (
	// ErrNotConfigured means the identity provider client has no URL or API
	// key. Fails fast, never retried.
	ErrNotConfigured = errors.New("identity provider not configured")

	// ErrInvalidCredentials is a user-facing authentication failure, distinct
	// from infrastructure failures so callers can message it differently.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProfileNotFound means no profile row exists for a known subject id.
	// It triggers provisioning rather than surfacing to the user.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrProfileExists signals a creation conflict: another caller
	// materialized the profile first.
	ErrProfileExists = errors.New("profile already exists")

	// ErrUnavailable is a transient backend failure (503, timeout, transport
	// error). Eligible for retry; surfaced when the retry budget is spent.
	ErrUnavailable = errors.New("service temporarily unavailable")

	// ErrUnknown covers everything else, including an unresolvable creation
	// conflict. Always carries its cause.
	ErrUnknown = errors.New("unknown auth error")

	// ErrNoSession means an operation requiring an active session was called
	// without one.
	ErrNoSession = errors.New("no active session")
)

// Unknown wraps cause under ErrUnknown so errors.Is(err, ErrUnknown) holds
// while the original failure stays visible in the chain.
func Unknown(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", msg, ErrUnknown)
	}
	return fmt.Errorf("%s: %w", msg, errors.Join(ErrUnknown, cause))
}

// IsTransient reports whether err should be retried. Only ErrUnavailable
// qualifies; NotFound, Conflict and credential errors are terminal.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
