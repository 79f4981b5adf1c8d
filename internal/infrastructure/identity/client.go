// Package identity adapts the external identity provider's REST API
// (GoTrue-style: password grant, signup, logout, recover) behind the
// ports.IdentityProvider interface.
//
// The client owns a local session slot and emits session-change events
// (SIGNED_IN, SIGNED_OUT, TOKEN_REFRESHED) from its own operations, mirroring
// how the provider's official SDKs notify listeners. It never learns about
// profiles.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/kaiin-app/authcore/internal/core/domain"
	"github.com/kaiin-app/authcore/internal/core/ports"
)

const defaultTimeout = 10 * time.Second

// Config captures the identity provider connection settings. URL and APIKey
// are both required; without them every operation fails fast with
// domain.ErrNotConfigured instead of attempting network I/O.
type Config struct {
	URL    string
	APIKey string
	// JWTSecret, when set, enables local HS256 verification of access tokens.
	JWTSecret string
	Timeout   time.Duration
}

// Client implements ports.IdentityProvider. Safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	jwtSecret string
	http      *http.Client
	log       zerolog.Logger

	mu        sync.Mutex
	session   *ports.ProviderSession
	listeners map[int]ports.SessionListener
	nextID    int
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		apiKey:    cfg.APIKey,
		jwtSecret: cfg.JWTSecret,
		http:      &http.Client{Timeout: timeout},
		log:       log,
		listeners: make(map[int]ports.SessionListener),
	}
}

func (c *Client) configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// ── Wire types ────────────────────────────────────────────────────────────────

type providerUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    string         `json:"created_at"`
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
	User         *providerUser `json:"user"`
}

type providerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (e providerError) message() string {
	if e.ErrorDescription != "" {
		return e.ErrorDescription
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Error
}

// ── Operations ────────────────────────────────────────────────────────────────

// SignInWithPassword performs the password grant and stores the resulting
// session. Wrong credentials map to domain.ErrInvalidCredentials.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*ports.ProviderSession, error) {
	if !c.configured() {
		return nil, domain.ErrNotConfigured
	}

	var tok tokenResponse
	err := c.post(ctx, "/auth/v1/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &tok)
	if err != nil {
		return nil, err
	}

	session, err := c.sessionFromToken(tok)
	if err != nil {
		return nil, err
	}
	c.storeSession(session)
	c.emit(ports.EventSignedIn, session)
	return session, nil
}

// SignUp registers a new account. Providers configured for immediate sign-in
// return a session; email-confirmation setups return only the user, in which
// case no session is stored and no event fires.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata ports.SessionMetadata) (*ports.ProviderSession, error) {
	if !c.configured() {
		return nil, domain.ErrNotConfigured
	}

	data := map[string]any{}
	if metadata.Name != "" {
		data["name"] = metadata.Name
	}
	if metadata.Role != "" {
		data["role"] = domain.NormalizeRole(metadata.Role)
	}

	var tok tokenResponse
	err := c.post(ctx, "/auth/v1/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"data":     data,
	}, &tok)
	if err != nil {
		return nil, err
	}

	if tok.AccessToken == "" {
		// Confirmation-required flow: account exists but no session yet.
		return nil, nil
	}

	session, err := c.sessionFromToken(tok)
	if err != nil {
		return nil, err
	}
	c.storeSession(session)
	c.emit(ports.EventSignedIn, session)
	return session, nil
}

// SignOut revokes the session remotely best-effort. Local state is always
// cleared and SIGNED_OUT always fires, even when the remote call fails.
func (c *Client) SignOut(ctx context.Context) error {
	if !c.configured() {
		return domain.ErrNotConfigured
	}

	c.mu.Lock()
	token := ""
	if c.session != nil {
		token = c.session.AccessToken
	}
	c.session = nil
	c.mu.Unlock()

	var remoteErr error
	if token != "" {
		remoteErr = c.post(ctx, "/auth/v1/logout", token, struct{}{}, nil)
		if remoteErr != nil {
			c.log.Warn().Err(remoteErr).Msg("remote sign-out failed, local session cleared anyway")
		}
	}

	c.emit(ports.EventSignedOut, nil)
	return remoteErr
}

// Session returns the locally held session, refreshing it when expired. No
// session yields (nil, nil), not an error.
func (c *Client) Session(ctx context.Context) (*ports.ProviderSession, error) {
	if !c.configured() {
		return nil, domain.ErrNotConfigured
	}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil, nil
	}
	if time.Now().Before(session.ExpiresAt) {
		clone := *session
		return &clone, nil
	}
	if session.RefreshToken == "" {
		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()
		return nil, nil
	}
	return c.RefreshSession(ctx)
}

// RefreshSession exchanges the refresh token for a fresh access token and
// emits TOKEN_REFRESHED.
func (c *Client) RefreshSession(ctx context.Context) (*ports.ProviderSession, error) {
	if !c.configured() {
		return nil, domain.ErrNotConfigured
	}

	c.mu.Lock()
	refresh := ""
	if c.session != nil {
		refresh = c.session.RefreshToken
	}
	c.mu.Unlock()

	if refresh == "" {
		return nil, domain.ErrNoSession
	}

	var tok tokenResponse
	err := c.post(ctx, "/auth/v1/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refresh,
	}, &tok)
	if err != nil {
		return nil, err
	}

	session, err := c.sessionFromToken(tok)
	if err != nil {
		return nil, err
	}
	c.storeSession(session)
	c.emit(ports.EventTokenRefreshed, session)
	return session, nil
}

// ResetPasswordForEmail triggers the provider's recovery mail flow.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	if !c.configured() {
		return domain.ErrNotConfigured
	}

	path := "/auth/v1/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.post(ctx, path, "", map[string]string{"email": email}, nil)
}

// UpdatePassword changes the current account's password. Requires an active
// session.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	if !c.configured() {
		return domain.ErrNotConfigured
	}

	c.mu.Lock()
	token := ""
	if c.session != nil {
		token = c.session.AccessToken
	}
	c.mu.Unlock()

	if token == "" {
		return domain.ErrNoSession
	}
	return c.put(ctx, "/auth/v1/user", token, map[string]string{"password": newPassword}, nil)
}

// OnSessionChange registers fn and returns its unsubscribe function.
func (c *Client) OnSessionChange(fn ports.SessionListener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// ── Internals ─────────────────────────────────────────────────────────────────

func (c *Client) storeSession(s *ports.ProviderSession) {
	clone := *s
	c.mu.Lock()
	c.session = &clone
	c.mu.Unlock()
}

// emit calls every listener with copies of the listener set and session, so
// subscription changes inside a callback cannot deadlock.
func (c *Client) emit(event ports.SessionEvent, session *ports.ProviderSession) {
	c.mu.Lock()
	fns := make([]ports.SessionListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		var clone *ports.ProviderSession
		if session != nil {
			cp := *session
			clone = &cp
		}
		fn(event, clone)
	}
}

// sessionFromToken converts a token response into a ProviderSession. When a
// JWT secret is configured the access token is verified locally and its
// claims take precedence over the response body.
func (c *Client) sessionFromToken(tok tokenResponse) (*ports.ProviderSession, error) {
	if tok.User == nil {
		return nil, domain.Unknown("token response missing user", nil)
	}

	session := &ports.ProviderSession{
		SubjectID:    tok.User.ID,
		Email:        tok.User.Email,
		Metadata:     metadataFrom(tok.User.UserMetadata),
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	if t, err := time.Parse(time.RFC3339, tok.User.CreatedAt); err == nil {
		session.CreatedAt = t
	}

	if c.jwtSecret != "" {
		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(tok.AccessToken, claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(c.jwtSecret), nil
		})
		if err != nil || !parsed.Valid {
			return nil, domain.Unknown("access token verification failed", err)
		}
		if sub, _ := claims["sub"].(string); sub != "" {
			session.SubjectID = sub
		}
		if email, _ := claims["email"].(string); email != "" {
			session.Email = email
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			session.ExpiresAt = exp.Time
		}
	}

	if session.SubjectID == "" {
		return nil, domain.Unknown("token response missing subject id", nil)
	}
	return session, nil
}

func metadataFrom(raw map[string]any) ports.SessionMetadata {
	md := ports.SessionMetadata{}
	if raw == nil {
		return md
	}
	if name, _ := raw["name"].(string); name != "" {
		md.Name = name
	}
	if role, _ := raw["role"].(string); role != "" {
		md.Role = role
	}
	return md
}

func (c *Client) post(ctx context.Context, path, bearer string, body, out any) error {
	return c.send(ctx, http.MethodPost, path, bearer, body, out)
}

func (c *Client) put(ctx context.Context, path, bearer string, body, out any) error {
	return c.send(ctx, http.MethodPut, path, bearer, body, out)
}

func (c *Client) send(ctx context.Context, method, path, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Unknown("encode provider request", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return domain.Unknown("build provider request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("identity provider %s %s: %w", method, path, errors.Join(domain.ErrUnavailable, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.Unknown("decode provider response", err)
		}
		return nil

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		var pe providerError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = json.Unmarshal(raw, &pe)
		return fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, pe.message())

	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway:
		return fmt.Errorf("identity provider %s %s: %w", method, path, domain.ErrUnavailable)

	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Unknown(
			fmt.Sprintf("identity provider %s %s: unexpected status %d (%s)", method, path, resp.StatusCode, strings.TrimSpace(string(raw))),
			nil,
		)
	}
}
