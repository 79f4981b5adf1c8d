package domain

import (
	"strings"
	"time"
)

const (
	RoleMember  = "member"
	RoleFP      = "fp"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// DefaultName is used when neither provider metadata nor the email yield a
// display name.
const DefaultName = "User"

// User is the reconciled record combining the identity-provider subject with
// the profile-store row. Exactly one exists per subject id once provisioning
// succeeds.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	ReferralCode string    `json:"referral_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NormalizeRole lowercases a role at the boundary. Unrecognized values are
// passed through case-folded only; the profile store is the authority on the
// closed set.
func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return RoleMember
	}
	return r
}

// DefaultDisplayName derives a display name: provider metadata name, then the
// local part of the email, then DefaultName.
func DefaultDisplayName(metadataName, email string) string {
	if n := strings.TrimSpace(metadataName); n != "" {
		return n
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return DefaultName
}

// IsElevated reports whether the role grants access to internal endpoints.
// This is a coarse check only; fine-grained policy lives elsewhere.
func IsElevated(role string) bool {
	switch NormalizeRole(role) {
	case RoleManager, RoleAdmin:
		return true
	}
	return false
}
