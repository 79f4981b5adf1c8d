package ports

import (
	"context"
	"time"
)

// SessionEvent identifies an auth-state transition emitted by the identity
// provider client.
type SessionEvent string

const (
	EventSignedIn       SessionEvent = "SIGNED_IN"
	EventSignedOut      SessionEvent = "SIGNED_OUT"
	EventTokenRefreshed SessionEvent = "TOKEN_REFRESHED"
)

// ProviderSession is the identity provider's view of an authenticated
// subject. Metadata is only used to seed profile defaults.
type ProviderSession struct {
	SubjectID    string
	Email        string
	Metadata     SessionMetadata
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// SessionMetadata carries the provider-side user metadata consumed by
// provisioning.
type SessionMetadata struct {
	Name string
	Role string
}

// SessionListener receives session-change notifications. Listeners must not
// block; they run on the emitting goroutine.
type SessionListener func(event SessionEvent, session *ProviderSession)

// IdentityProvider wraps the external identity provider's session and
// credential API. It has no knowledge of profiles.
type IdentityProvider interface {
	// SignInWithPassword exchanges credentials for a session. Wrong
	// credentials yield domain.ErrInvalidCredentials.
	SignInWithPassword(ctx context.Context, email, password string) (*ProviderSession, error)

	// SignUp registers a new account. Metadata seeds the provider-side user
	// metadata (name, role).
	SignUp(ctx context.Context, email, password string, metadata SessionMetadata) (*ProviderSession, error)

	// SignOut ends the remote session best-effort and always clears local
	// session state, even when the remote call fails.
	SignOut(ctx context.Context) error

	// Session returns the current session, or (nil, nil) when there is none.
	// Absence of a session is not an error.
	Session(ctx context.Context) (*ProviderSession, error)

	// RefreshSession exchanges the refresh token for a new access token and
	// emits EventTokenRefreshed.
	RefreshSession(ctx context.Context) (*ProviderSession, error)

	// ResetPasswordForEmail triggers the provider's recovery mail flow.
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error

	// UpdatePassword changes the password of the current session's account.
	UpdatePassword(ctx context.Context, newPassword string) error

	// OnSessionChange registers a listener and returns its unsubscribe
	// function.
	OnSessionChange(fn SessionListener) (unsubscribe func())
}
