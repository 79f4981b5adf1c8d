package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kaiin-app/authcore/internal/cache"
	"github.com/kaiin-app/authcore/internal/core/domain"
	"github.com/kaiin-app/authcore/internal/core/ports"
)

// stubProvider is an in-memory IdentityProvider that emits session events
// from its own operations, like the real adapter.
type stubProvider struct {
	account      *ports.ProviderSession // credentials resolve to this
	session      *ports.ProviderSession // currently held session
	signInErr    error
	signOutErr   error
	sessionCalls int

	listeners []ports.SessionListener
}

func (p *stubProvider) SignInWithPassword(_ context.Context, _, _ string) (*ports.ProviderSession, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	p.session = p.account
	p.emit(ports.EventSignedIn, p.session)
	return p.session, nil
}

func (p *stubProvider) SignUp(_ context.Context, email, _ string, md ports.SessionMetadata) (*ports.ProviderSession, error) {
	p.session = &ports.ProviderSession{SubjectID: "new", Email: email, Metadata: md}
	p.emit(ports.EventSignedIn, p.session)
	return p.session, nil
}

func (p *stubProvider) SignOut(context.Context) error {
	p.session = nil
	p.emit(ports.EventSignedOut, nil)
	return p.signOutErr
}

func (p *stubProvider) Session(context.Context) (*ports.ProviderSession, error) {
	p.sessionCalls++
	return p.session, nil
}

func (p *stubProvider) RefreshSession(context.Context) (*ports.ProviderSession, error) {
	if p.session == nil {
		return nil, domain.ErrNoSession
	}
	p.emit(ports.EventTokenRefreshed, p.session)
	return p.session, nil
}

func (p *stubProvider) ResetPasswordForEmail(context.Context, string, string) error { return nil }
func (p *stubProvider) UpdatePassword(context.Context, string) error                { return nil }

func (p *stubProvider) OnSessionChange(fn ports.SessionListener) func() {
	p.listeners = append(p.listeners, fn)
	i := len(p.listeners) - 1
	return func() { p.listeners[i] = nil }
}

func (p *stubProvider) emit(event ports.SessionEvent, s *ports.ProviderSession) {
	for _, fn := range p.listeners {
		if fn != nil {
			fn(event, s)
		}
	}
}

func newFixture(provider *stubProvider, store *stubProfileStore) *SessionService {
	return NewSessionService(
		provider,
		NewProvisionService(store, zerolog.Nop()),
		cache.NewCurrentUser(),
		nil,
		zerolog.Nop(),
	)
}

func taroProvider() *stubProvider {
	return &stubProvider{
		account: &ports.ProviderSession{
			SubjectID: "u1",
			Email:     "t@example.com",
			Metadata:  ports.SessionMetadata{Name: "Taro", Role: "FP"},
		},
	}
}

func TestLogin_ProvisionsNewProfile(t *testing.T) {
	provider := taroProvider()
	store := newStubProfileStore()
	svc := newFixture(provider, store)

	user, err := svc.Login(context.Background(), "t@example.com", "pw")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.ID != "u1" || user.Name != "Taro" || user.Role != "fp" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if svc.State() != ports.StateAuthenticated {
		t.Fatalf("expected authenticated state, got %s", svc.State())
	}
	// SIGNED_IN handler resolves once; login reuses the cached result.
	if store.fetchCalls != 1 || store.createOK != 1 {
		t.Fatalf("expected one fetch and one create, got fetch=%d create=%d", store.fetchCalls, store.createOK)
	}
}

func TestLogin_InvalidCredentialsDistinctFromInfraFailure(t *testing.T) {
	provider := taroProvider()
	provider.signInErr = domain.ErrInvalidCredentials
	svc := newFixture(provider, newStubProfileStore())

	_, err := svc.Login(context.Background(), "t@example.com", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if svc.State() != ports.StateUnauthenticated {
		t.Fatalf("expected unauthenticated state, got %s", svc.State())
	}
}

func TestLogin_ProfileResolutionFailureIsNotCredentialError(t *testing.T) {
	provider := taroProvider()
	store := newStubProfileStore()
	store.fetchErrs = []error{domain.ErrUnavailable, domain.ErrUnavailable}
	svc := newFixture(provider, store)

	_, err := svc.Login(context.Background(), "t@example.com", "pw")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("infra failure must not masquerade as a credential error")
	}
	if svc.State() != ports.StateError {
		t.Fatalf("expected error state, got %s", svc.State())
	}
	if provider.session == nil {
		t.Fatalf("credentials were valid; provider session should exist")
	}
}

func TestCurrentUser_CacheShortCircuit(t *testing.T) {
	provider := taroProvider()
	store := newStubProfileStore()
	svc := newFixture(provider, store)

	if _, err := svc.Login(context.Background(), "t@example.com", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	fetchesBefore := store.fetchCalls
	sessionCallsBefore := provider.sessionCalls

	user, err := svc.CurrentUser(context.Background())
	if err != nil || user == nil || user.ID != "u1" {
		t.Fatalf("expected cached u1, got user=%+v err=%v", user, err)
	}
	if store.fetchCalls != fetchesBefore || provider.sessionCalls != sessionCallsBefore {
		t.Fatalf("cache hit must perform zero network calls")
	}
}

func TestCurrentUser_ColdStartResolvesFromSession(t *testing.T) {
	provider := taroProvider()
	provider.session = provider.account // session survives from a previous run
	store := newStubProfileStore()
	store.profiles["u1"] = &domain.User{ID: "u1", Email: "t@example.com", Name: "Taro", Role: "fp"}
	svc := newFixture(provider, store)

	user, err := svc.CurrentUser(context.Background())
	if err != nil || user == nil || user.ID != "u1" {
		t.Fatalf("expected u1 from cold start, got user=%+v err=%v", user, err)
	}
	if svc.State() != ports.StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", svc.State())
	}
}

func TestCurrentUser_NoSessionIsNilNotError(t *testing.T) {
	provider := taroProvider()
	store := newStubProfileStore()
	svc := newFixture(provider, store)

	user, err := svc.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("no session must not be an error: %v", err)
	}
	if user != nil {
		t.Fatalf("expected nil user, got %+v", user)
	}
	if store.fetchCalls != 0 {
		t.Fatalf("no session must not hit the profile store")
	}
}

func TestLogout_ClearsStateEvenWhenRemoteSignOutFails(t *testing.T) {
	provider := taroProvider()
	provider.signOutErr = errors.New("network down")
	store := newStubProfileStore()
	svc := newFixture(provider, store)

	if _, err := svc.Login(context.Background(), "t@example.com", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.Logout(context.Background()); err != nil {
		t.Fatalf("logout must swallow remote failure, got %v", err)
	}
	if svc.State() != ports.StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", svc.State())
	}

	fetchesBefore := store.fetchCalls
	user, err := svc.CurrentUser(context.Background())
	if err != nil || user != nil {
		t.Fatalf("expected nil user after logout, got user=%+v err=%v", user, err)
	}
	if store.fetchCalls != fetchesBefore {
		t.Fatalf("post-logout CurrentUser must not hit the profile store")
	}
}

func TestSubscribers_NotifiedOnLoginAndLogout(t *testing.T) {
	provider := taroProvider()
	svc := newFixture(provider, newStubProfileStore())

	var got []*domain.User
	unsubscribe := svc.Subscribe(func(u *domain.User) { got = append(got, u) })

	_, _ = svc.Login(context.Background(), "t@example.com", "pw")
	_ = svc.Logout(context.Background())

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0] == nil || got[0].ID != "u1" {
		t.Fatalf("first notification should carry the user, got %+v", got[0])
	}
	if got[1] != nil {
		t.Fatalf("sign-out notification must be nil, got %+v", got[1])
	}

	unsubscribe()
	_, _ = svc.Login(context.Background(), "t@example.com", "pw")
	if len(got) != 2 {
		t.Fatalf("listener fired after unsubscribe")
	}
}

func TestEventHandler_ResolutionFailureDegradesToNilNotification(t *testing.T) {
	provider := taroProvider()
	store := newStubProfileStore()
	store.fetchErrs = []error{domain.ErrUnavailable}
	svc := newFixture(provider, store)

	var got []*domain.User
	svc.Subscribe(func(u *domain.User) { got = append(got, u) })

	// Emit directly: the event path must not panic and must notify nil.
	provider.emit(ports.EventSignedIn, provider.account)

	if len(got) != 1 || got[0] != nil {
		t.Fatalf("expected single nil notification, got %v", got)
	}
	if svc.State() != ports.StateError {
		t.Fatalf("expected error state, got %s", svc.State())
	}
}

func TestNotify_SubscriberPanicIsolated(t *testing.T) {
	provider := taroProvider()
	svc := newFixture(provider, newStubProfileStore())

	svc.Subscribe(func(*domain.User) { panic("bad subscriber") })
	calls := 0
	svc.Subscribe(func(*domain.User) { calls++ })

	if _, err := svc.Login(context.Background(), "t@example.com", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("second subscriber must still be notified, got %d calls", calls)
	}
}

func TestTokenRefresh_ReusesCacheForSameSubject(t *testing.T) {
	provider := taroProvider()
	store := newStubProfileStore()
	svc := newFixture(provider, store)

	if _, err := svc.Login(context.Background(), "t@example.com", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	fetchesBefore := store.fetchCalls

	var notified []*domain.User
	svc.Subscribe(func(u *domain.User) { notified = append(notified, u) })

	if _, err := provider.RefreshSession(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if store.fetchCalls != fetchesBefore {
		t.Fatalf("refresh for the cached subject must not re-resolve")
	}
	if len(notified) != 1 || notified[0] == nil || notified[0].ID != "u1" {
		t.Fatalf("expected refresh notification with u1, got %v", notified)
	}
}

func TestReset_DropsCachedUser(t *testing.T) {
	provider := taroProvider()
	store := newStubProfileStore()
	svc := newFixture(provider, store)

	if _, err := svc.Login(context.Background(), "t@example.com", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	svc.Reset()
	fetchesBefore := store.fetchCalls

	user, err := svc.CurrentUser(context.Background())
	if err != nil || user == nil {
		t.Fatalf("expected re-resolution after reset, got user=%+v err=%v", user, err)
	}
	if store.fetchCalls != fetchesBefore+1 {
		t.Fatalf("reset must force a fresh resolve, fetches=%d", store.fetchCalls)
	}
}
