package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kaiin-app/authcore/internal/api/metrics"
	"github.com/kaiin-app/authcore/internal/core/domain"
	"github.com/kaiin-app/authcore/internal/core/ports"
)

// ProvisionService guarantees that EnsureProfile yields a materialized user
// exactly once per subject id. Losers of a creation race converge by
// re-reading the winner's row; at most one profile row is ever created.
type ProvisionService struct {
	store ports.ProfileStore
	log   zerolog.Logger
}

func NewProvisionService(store ports.ProfileStore, log zerolog.Logger) *ProvisionService {
	return &ProvisionService{store: store, log: log}
}

// EnsureProfile fetches the profile for the session's subject, creating it
// with defaults derived from provider metadata when absent.
//
// Failure semantics:
//   - fetch Unavailable: surfaced as-is, creation never attempted — absence
//     cannot be distinguished from connectivity loss.
//   - create Conflict: one re-fetch; a failing re-fetch escalates to
//     ErrUnknown with the cause attached rather than looping.
func (s *ProvisionService) EnsureProfile(ctx context.Context, session *ports.ProviderSession) (*domain.User, error) {
	if session == nil || session.SubjectID == "" {
		return nil, domain.Unknown("ensure profile: empty session", nil)
	}

	user, err := s.store.FetchProfile(ctx, session.SubjectID)
	if err == nil {
		metrics.ProvisioningTotal.WithLabelValues("found").Inc()
		return user, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		if errors.Is(err, domain.ErrUnavailable) {
			metrics.ProvisioningTotal.WithLabelValues("unavailable").Inc()
			return nil, fmt.Errorf("ensure profile: %w", err)
		}
		metrics.ProvisioningTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ensure profile: %w", err)
	}

	input := ports.CreateProfileInput{
		SubjectID: session.SubjectID,
		Email:     session.Email,
		Name:      domain.DefaultDisplayName(session.Metadata.Name, session.Email),
		Role:      domain.NormalizeRole(session.Metadata.Role),
	}

	created, err := s.store.CreateProfile(ctx, input)
	if err == nil {
		s.log.Info().Str("subject", session.SubjectID).Str("role", created.Role).Msg("profile provisioned")
		metrics.ProvisioningTotal.WithLabelValues("created").Inc()
		return created, nil
	}

	if errors.Is(err, domain.ErrProfileExists) {
		// Another caller won the creation race; converge on their row.
		existing, refetchErr := s.store.FetchProfile(ctx, session.SubjectID)
		if refetchErr != nil {
			metrics.ProvisioningTotal.WithLabelValues("error").Inc()
			return nil, domain.Unknown("ensure profile: conflict re-fetch failed", refetchErr)
		}
		s.log.Debug().Str("subject", session.SubjectID).Msg("lost creation race, converged on existing profile")
		metrics.ProvisioningTotal.WithLabelValues("converged").Inc()
		return existing, nil
	}

	if errors.Is(err, domain.ErrUnavailable) {
		metrics.ProvisioningTotal.WithLabelValues("unavailable").Inc()
	} else {
		metrics.ProvisioningTotal.WithLabelValues("error").Inc()
	}
	return nil, fmt.Errorf("ensure profile: %w", err)
}
