// Package profilestore implements the HTTP client for the profile-store
// service: fetch a profile by subject id, or create one. Transient failures
// (503, timeout, transport errors) are retried with exponential backoff;
// terminal failures map to the domain error taxonomy and return immediately.
package profilestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kaiin-app/authcore/internal/api/metrics"
	"github.com/kaiin-app/authcore/internal/core/domain"
	"github.com/kaiin-app/authcore/internal/core/ports"
	"github.com/kaiin-app/authcore/internal/pkg/retry"
)

const defaultTimeout = 10 * time.Second

// Config captures the profile-store connection settings.
type Config struct {
	BaseURL string
	// Timeout bounds each individual attempt, not the whole retry loop.
	Timeout        time.Duration
	RetryAttempts  int
	InitialBackoff time.Duration
}

// Client talks to the profile store. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	policy  retry.Policy
	log     zerolog.Logger
}

// NewClient builds a Client. Zero-valued retry settings fall back to the
// package defaults (3 attempts, 1s initial backoff, 10s per-attempt timeout).
func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
		policy: retry.Policy{
			Attempts:       cfg.RetryAttempts,
			InitialBackoff: cfg.InitialBackoff,
			Transient:      domain.IsTransient,
		},
		log: log,
	}
}

// userEnvelope is the store's response body: { "user": { ... } }.
type userEnvelope struct {
	User *domain.User `json:"user"`
}

type createProfileRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// FetchProfile retrieves the profile row for a subject id.
// 404 maps to domain.ErrProfileNotFound and is never retried.
func (c *Client) FetchProfile(ctx context.Context, subjectID string) (*domain.User, error) {
	var user *domain.User
	err := c.do(ctx, "fetch_profile", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/profile/"+subjectID, nil)
		if err != nil {
			return domain.Unknown("build fetch request", err)
		}
		u, err := c.send(req, "fetch_profile")
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateProfile materializes a new profile row.
// 409 maps to domain.ErrProfileExists and is never retried.
func (c *Client) CreateProfile(ctx context.Context, in ports.CreateProfileInput) (*domain.User, error) {
	body, err := json.Marshal(createProfileRequest{
		UserID: in.SubjectID,
		Email:  in.Email,
		Name:   in.Name,
		Role:   in.Role,
	})
	if err != nil {
		return nil, domain.Unknown("encode create request", err)
	}

	var user *domain.User
	err = c.do(ctx, "create_profile", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create-profile", bytes.NewReader(body))
		if err != nil {
			return domain.Unknown("build create request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		u, err := c.send(req, "create_profile")
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// do wraps fn in the retry policy with a per-attempt timeout.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.StoreRetriesTotal.WithLabelValues(op).Inc()
			c.log.Warn().Str("op", op).Int("attempt", attempt).Msg("retrying profile store call")
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(attemptCtx)
	})
}

// send executes the request and classifies the outcome structurally; no
// status strings are ever sniffed out of error messages.
func (c *Client) send(req *http.Request, op string) (*domain.User, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Timeouts and transport errors are indistinguishable from a down
		// backend; both count as transient.
		metrics.StoreRequestsTotal.WithLabelValues(op, "unavailable").Inc()
		return nil, fmt.Errorf("profile store %s: %w", op, errors.Join(domain.ErrUnavailable, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var env userEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			metrics.StoreRequestsTotal.WithLabelValues(op, "error").Inc()
			return nil, domain.Unknown("decode profile store response", err)
		}
		if env.User == nil {
			metrics.StoreRequestsTotal.WithLabelValues(op, "error").Inc()
			return nil, domain.Unknown("profile store response missing user", nil)
		}
		env.User.Role = domain.NormalizeRole(env.User.Role)
		metrics.StoreRequestsTotal.WithLabelValues(op, "ok").Inc()
		return env.User, nil

	case http.StatusNotFound:
		metrics.StoreRequestsTotal.WithLabelValues(op, "not_found").Inc()
		return nil, domain.ErrProfileNotFound

	case http.StatusConflict:
		metrics.StoreRequestsTotal.WithLabelValues(op, "conflict").Inc()
		return nil, domain.ErrProfileExists

	case http.StatusServiceUnavailable:
		metrics.StoreRequestsTotal.WithLabelValues(op, "unavailable").Inc()
		return nil, fmt.Errorf("profile store %s: %w", op, domain.ErrUnavailable)

	default:
		metrics.StoreRequestsTotal.WithLabelValues(op, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.Unknown(
			fmt.Sprintf("profile store %s: unexpected status %d (%s)", op, resp.StatusCode, strings.TrimSpace(string(body))),
			nil,
		)
	}
}
