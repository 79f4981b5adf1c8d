package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kaiin-app/authcore/internal/api/metrics"
	"github.com/kaiin-app/authcore/internal/cache"
	"github.com/kaiin-app/authcore/internal/core/domain"
	"github.com/kaiin-app/authcore/internal/core/ports"
)

// HookSink receives resolution outcomes for best-effort side effects. The
// dispatcher implementation must not block and must swallow recorder errors.
type HookSink interface {
	Dispatch(r ports.Resolution)
}

// SessionService reconciles the identity provider's session state with the
// profile store, owning the single current-user slot. It is an explicit
// injected instance, never package-level state; tests construct their own and
// call Reset between scenarios.
type SessionService struct {
	provider    ports.IdentityProvider
	provisioner ports.Provisioner
	cache       *cache.CurrentUser
	hooks       HookSink
	log         zerolog.Logger

	mu          sync.Mutex
	state       ports.SessionState
	subscribers map[int]ports.UserListener
	nextID      int

	unsubscribeProvider func()
}

// NewSessionService wires the reconciler and subscribes it to the provider's
// session-change events. Call Close to detach the subscription.
func NewSessionService(
	provider ports.IdentityProvider,
	provisioner ports.Provisioner,
	userCache *cache.CurrentUser,
	hooks HookSink,
	log zerolog.Logger,
) *SessionService {
	s := &SessionService{
		provider:    provider,
		provisioner: provisioner,
		cache:       userCache,
		hooks:       hooks,
		log:         log,
		state:       ports.StateUnauthenticated,
		subscribers: make(map[int]ports.UserListener),
	}
	s.unsubscribeProvider = provider.OnSessionChange(s.handleSessionEvent)
	return s
}

// Close detaches the reconciler from the provider's event stream.
func (s *SessionService) Close() {
	if s.unsubscribeProvider != nil {
		s.unsubscribeProvider()
		s.unsubscribeProvider = nil
	}
}

// Login authenticates and resolves the profile. Credential failures are
// reported as domain.ErrInvalidCredentials; a valid sign-in whose profile
// resolution fails surfaces the infrastructure error instead, so callers can
// message the two cases differently.
func (s *SessionService) Login(ctx context.Context, email, password string) (*domain.User, error) {
	s.setState(ports.StateResolving)

	session, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.setState(ports.StateUnauthenticated)
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		case errors.Is(err, domain.ErrUnavailable):
			metrics.LoginsTotal.WithLabelValues("unavailable").Inc()
		default:
			metrics.LoginsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	// The sign-in already fired SIGNED_IN, whose handler resolves the
	// profile and fills the cache. Reuse its result on a hit; resolve
	// directly on a miss so the caller sees the real error.
	user, err := s.resolve(ctx, session)
	if err != nil {
		s.cache.Clear()
		s.setState(ports.StateError)
		if errors.Is(err, domain.ErrUnavailable) {
			metrics.LoginsTotal.WithLabelValues("unavailable").Inc()
		} else {
			metrics.LoginsTotal.WithLabelValues("error").Inc()
		}
		s.dispatch(ports.Resolution{SubjectID: session.SubjectID, Email: session.Email, Kind: ports.ResolutionFailed, Detail: err.Error()})
		return nil, fmt.Errorf("login: profile resolution failed: %w", err)
	}

	s.setState(ports.StateAuthenticated)
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	s.dispatch(ports.Resolution{SubjectID: user.ID, Email: user.Email, Kind: ports.ResolutionLogin})
	return user, nil
}

// Logout signs out best-effort and always leaves the reconciler
// unauthenticated with an empty cache, even when the remote call fails.
func (s *SessionService) Logout(ctx context.Context) error {
	var subject string
	if u, ok := s.cache.Get(); ok {
		subject = u.ID
	}

	if err := s.provider.SignOut(ctx); err != nil && !errors.Is(err, domain.ErrNotConfigured) {
		s.log.Warn().Err(err).Msg("remote sign-out failed")
	}

	// The SIGNED_OUT handler normally clears the cache; do it here as well
	// in case the provider could not emit (e.g. not configured).
	s.cache.Clear()
	s.setState(ports.StateUnauthenticated)
	if subject != "" {
		s.dispatch(ports.Resolution{SubjectID: subject, Kind: ports.ResolutionLogout})
	}
	return nil
}

// CurrentUser returns the reconciled user, (nil, nil) when unauthenticated.
// The cache is consulted before any network round trip; most UI reads take
// this fast path.
func (s *SessionService) CurrentUser(ctx context.Context) (*domain.User, error) {
	if user, ok := s.cache.Get(); ok {
		metrics.SessionCacheTotal.WithLabelValues("hit").Inc()
		return user, nil
	}
	metrics.SessionCacheTotal.WithLabelValues("miss").Inc()

	session, err := s.provider.Session(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		s.setState(ports.StateUnauthenticated)
		return nil, nil
	}

	s.setState(ports.StateResolving)
	user, err := s.resolve(ctx, session)
	if err != nil {
		s.cache.Clear()
		s.setState(ports.StateError)
		s.dispatch(ports.Resolution{SubjectID: session.SubjectID, Email: session.Email, Kind: ports.ResolutionFailed, Detail: err.Error()})
		return nil, err
	}

	s.setState(ports.StateAuthenticated)
	s.dispatch(ports.Resolution{SubjectID: user.ID, Email: user.Email, Kind: ports.ResolutionProvisioned})
	return user, nil
}

// SignUp registers a new account. Providers that require email confirmation
// return no session; then no profile is provisioned yet and (nil, nil) is
// returned.
func (s *SessionService) SignUp(ctx context.Context, email, password string, metadata ports.SessionMetadata) (*domain.User, error) {
	session, err := s.provider.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.resolve(ctx, session)
	if err != nil {
		s.cache.Clear()
		s.setState(ports.StateError)
		return nil, fmt.Errorf("signup: profile resolution failed: %w", err)
	}
	s.setState(ports.StateAuthenticated)
	s.dispatch(ports.Resolution{SubjectID: user.ID, Email: user.Email, Kind: ports.ResolutionLogin})
	return user, nil
}

// Refresh forces a token refresh. The TOKEN_REFRESHED handler re-resolves
// the profile into the cache; the reconciled user is returned.
func (s *SessionService) Refresh(ctx context.Context) (*domain.User, error) {
	session, err := s.provider.RefreshSession(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, session)
}

// RequestPasswordReset triggers the provider's recovery mail flow.
func (s *SessionService) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	return s.provider.ResetPasswordForEmail(ctx, email, redirectTo)
}

// UpdatePassword changes the current account's password.
func (s *SessionService) UpdatePassword(ctx context.Context, newPassword string) error {
	return s.provider.UpdatePassword(ctx, newPassword)
}

// State returns the reconciler's coarse lifecycle state.
func (s *SessionService) State() ports.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a listener notified with the reconciled user after
// every session transition (nil on sign-out or resolution failure). Returns
// the unsubscribe function.
func (s *SessionService) Subscribe(fn ports.UserListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Reset drops the cached user so the next CurrentUser call resolves from
// scratch. State is preserved only as far as the provider still holds a
// session.
func (s *SessionService) Reset() {
	s.cache.Clear()
	s.setState(ports.StateUnauthenticated)
}

// ── Internals ─────────────────────────────────────────────────────────────────

// resolve checks the cache first and provisions on a miss, writing the
// result back into the slot. Racing paths converge last-writer-wins.
func (s *SessionService) resolve(ctx context.Context, session *ports.ProviderSession) (*domain.User, error) {
	if cached, ok := s.cache.Get(); ok && cached.ID == session.SubjectID {
		metrics.SessionCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}

	user, err := s.provisioner.EnsureProfile(ctx, session)
	if err != nil {
		return nil, err
	}
	s.cache.Set(user)
	return user, nil
}

// handleSessionEvent reconciles asynchronous auth-state notifications. It
// must never panic or propagate: a failure inside this path degrades to
// notifying subscribers with nil.
func (s *SessionService) handleSessionEvent(event ports.SessionEvent, session *ports.ProviderSession) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("event", string(event)).Msg("session event handler panicked")
		}
	}()

	metrics.SessionEventsTotal.WithLabelValues(string(event)).Inc()

	switch event {
	case ports.EventSignedOut:
		s.cache.Clear()
		s.setState(ports.StateUnauthenticated)
		s.notify(nil)

	case ports.EventSignedIn, ports.EventTokenRefreshed:
		if session == nil {
			return
		}
		user, err := s.resolve(context.Background(), session)
		if err != nil {
			s.log.Error().Err(err).Str("subject", session.SubjectID).Msg("profile resolution failed in event handler")
			s.cache.Clear()
			s.setState(ports.StateError)
			s.notify(nil)
			return
		}
		s.setState(ports.StateAuthenticated)
		if event == ports.EventTokenRefreshed {
			s.dispatch(ports.Resolution{SubjectID: user.ID, Email: user.Email, Kind: ports.ResolutionRefreshed})
		}
		s.notify(user)
	}
}

// notify fans the user out to subscribers. Each callback is isolated so one
// panicking subscriber cannot break dispatch for the rest.
func (s *SessionService) notify(user *domain.User) {
	s.mu.Lock()
	fns := make([]ports.UserListener, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Msg("auth-state subscriber panicked")
				}
			}()
			var clone *domain.User
			if user != nil {
				cp := *user
				clone = &cp
			}
			fn(clone)
		}()
	}
}

func (s *SessionService) setState(state ports.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *SessionService) dispatch(r ports.Resolution) {
	if s.hooks == nil {
		return
	}
	s.hooks.Dispatch(r)
}
