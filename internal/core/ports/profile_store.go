package ports

import (
	"context"

	"github.com/kaiin-app/authcore/internal/core/domain"
)

// CreateProfileInput carries the fields needed to materialize a profile row.
type CreateProfileInput struct {
	SubjectID string
	Email     string
	Name      string
	Role      string
}

// ProfileStore fetches or creates the profile row keyed by the
// identity-provider subject id. Implementations classify failures into the
// domain error taxonomy: ErrProfileNotFound, ErrProfileExists,
// ErrUnavailable, ErrUnknown.
type ProfileStore interface {
	FetchProfile(ctx context.Context, subjectID string) (*domain.User, error)
	CreateProfile(ctx context.Context, in CreateProfileInput) (*domain.User, error)
}
