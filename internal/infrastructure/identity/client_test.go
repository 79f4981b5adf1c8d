package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/kaiin-app/authcore/internal/core/domain"
	"github.com/kaiin-app/authcore/internal/core/ports"
)

const testSecret = "test-jwt-secret"

func mintToken(t *testing.T, sub, email string, ttl time.Duration) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   time.Now().Add(ttl).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func tokenBody(t *testing.T, sub, email string, metadata map[string]any) map[string]any {
	t.Helper()
	return map[string]any{
		"access_token":  mintToken(t, sub, email, time.Hour),
		"refresh_token": "refresh-" + sub,
		"expires_in":    3600,
		"user": map[string]any{
			"id":            sub,
			"email":         email,
			"user_metadata": metadata,
			"created_at":    "2026-01-15T09:00:00Z",
		},
	}
}

func newTestClient(url string) *Client {
	return NewClient(Config{URL: url, APIKey: "anon-key", JWTSecret: testSecret}, zerolog.Nop())
}

func TestSignInWithPassword_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Errorf("missing apikey header")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "t@example.com" || body["password"] != "pw" {
			t.Errorf("unexpected body: %v", body)
		}
		_ = json.NewEncoder(w).Encode(tokenBody(t, "u1", "t@example.com", map[string]any{"name": "Taro", "role": "FP"}))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	session, err := c.SignInWithPassword(context.Background(), "t@example.com", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.SubjectID != "u1" || session.Email != "t@example.com" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.Metadata.Name != "Taro" || session.Metadata.Role != "FP" {
		t.Fatalf("metadata not captured: %+v", session.Metadata)
	}
	if session.CreatedAt.IsZero() {
		t.Fatalf("created_at not parsed")
	}
}

func TestSignInWithPassword_InvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "Invalid login credentials"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SignInWithPassword(context.Background(), "t@example.com", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestNotConfigured_FailsFastWithoutNetwork(t *testing.T) {
	c := NewClient(Config{}, zerolog.Nop())

	if _, err := c.SignInWithPassword(context.Background(), "a", "b"); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := c.Session(context.Background()); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := c.SignOut(context.Background()); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := c.ResetPasswordForEmail(context.Background(), "a@example.com", ""); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSession_NilWhenNoneHeld(t *testing.T) {
	c := newTestClient("http://localhost:1") // never dialed

	session, err := c.Session(context.Background())
	if err != nil {
		t.Fatalf("no session must not be an error, got %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session, got %+v", session)
	}
}

func TestSignOut_ClearsLocalSessionEvenWhenRemoteFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path == "/auth/v1/logout" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(tokenBody(t, "u1", "t@example.com", nil))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.SignInWithPassword(context.Background(), "t@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if err := c.SignOut(context.Background()); err == nil {
		t.Fatalf("expected remote sign-out error to be reported")
	}

	session, err := c.Session(context.Background())
	if err != nil || session != nil {
		t.Fatalf("local session must be cleared despite remote failure: session=%+v err=%v", session, err)
	}
}

func TestOnSessionChange_EmitsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenBody(t, "u1", "t@example.com", nil))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	var events []ports.SessionEvent
	unsubscribe := c.OnSessionChange(func(event ports.SessionEvent, _ *ports.ProviderSession) {
		events = append(events, event)
	})

	_, _ = c.SignInWithPassword(context.Background(), "t@example.com", "pw")
	_, _ = c.RefreshSession(context.Background())
	_ = c.SignOut(context.Background())

	want := []ports.SessionEvent{ports.EventSignedIn, ports.EventTokenRefreshed, ports.EventSignedOut}
	if len(events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], events[i])
		}
	}

	unsubscribe()
	_, _ = c.SignInWithPassword(context.Background(), "t@example.com", "pw")
	if len(events) != len(want) {
		t.Fatalf("listener fired after unsubscribe: %v", events)
	}
}

func TestSignIn_RejectsTokenSignedWithWrongSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "u1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, _ := tok.SignedString([]byte("some-other-secret"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": signed,
			"expires_in":   3600,
			"user":         map[string]any{"id": "u1", "email": "t@example.com"},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SignInWithPassword(context.Background(), "t@example.com", "pw")
	if !errors.Is(err, domain.ErrUnknown) {
		t.Fatalf("expected verification failure as ErrUnknown, got %v", err)
	}
}

func TestSignUp_ConfirmationFlowReturnsNoSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/signup" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		// No access_token: provider requires email confirmation first.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": "u9", "email": "n@example.com"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	session, err := c.SignUp(context.Background(), "n@example.com", "pw", ports.SessionMetadata{Name: "New", Role: "Member"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Fatalf("confirmation flow must not yield a session, got %+v", session)
	}
	if held, _ := c.Session(context.Background()); held != nil {
		t.Fatalf("no session should be stored, got %+v", held)
	}
}

func TestProviderOutage_ClassifiedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SignInWithPassword(context.Background(), "t@example.com", "pw")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
