package ports

import (
	"context"

	"github.com/kaiin-app/authcore/internal/core/domain"
)

// SessionState is the reconciler's coarse lifecycle state.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateResolving       SessionState = "resolving"
	StateAuthenticated   SessionState = "authenticated"
	StateError           SessionState = "error"
)

// UserListener receives the reconciled user after every session transition,
// or nil when the session ended or resolution failed.
type UserListener func(user *domain.User)

// Provisioner guarantees idempotent profile materialization for a provider
// session: at most one profile row per subject id, with creation races
// resolved by re-reading.
type Provisioner interface {
	EnsureProfile(ctx context.Context, session *ProviderSession) (*domain.User, error)
}

// SessionService is the top-level orchestrator bridging the identity provider
// with the profile store and owning the single current-user slot.
type SessionService interface {
	Login(ctx context.Context, email, password string) (*domain.User, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*domain.User, error)
	Refresh(ctx context.Context) (*domain.User, error)
	SignUp(ctx context.Context, email, password string, metadata SessionMetadata) (*domain.User, error)
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	State() SessionState
	Subscribe(fn UserListener) (unsubscribe func())
	// Reset drops the cached user so the next CurrentUser call resolves from
	// scratch. Intended for tests and the internal support endpoint.
	Reset()
}

// ResolutionKind tags a post-resolution hook event.
type ResolutionKind string

const (
	ResolutionLogin       ResolutionKind = "login"
	ResolutionLogout      ResolutionKind = "logout"
	ResolutionProvisioned ResolutionKind = "provisioned"
	ResolutionFailed      ResolutionKind = "failed"
	ResolutionRefreshed   ResolutionKind = "refreshed"
)

// Resolution describes the outcome of one reconciliation pass. It feeds
// best-effort side effects (audit trail, last-seen) that must never fail the
// caller-visible result.
type Resolution struct {
	SubjectID string
	Email     string
	Kind      ResolutionKind
	Detail    string
}

// ResolutionHook consumes resolutions best-effort. Errors are logged by the
// dispatcher, never propagated.
type ResolutionHook interface {
	Record(ctx context.Context, r Resolution) error
}
