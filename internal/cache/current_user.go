// Package cache holds the single-slot current-user cache consulted before
// any network round trip.
package cache

import (
	"sync"

	"github.com/kaiin-app/authcore/internal/core/domain"
)

// CurrentUser stores at most one resolved user at a time. The slot is
// assigned whole (never field-by-field) so concurrent readers observe either
// the previous or the next user, nothing in between.
type CurrentUser struct {
	mu   sync.RWMutex
	user *domain.User
}

func NewCurrentUser() *CurrentUser {
	return &CurrentUser{}
}

// Get returns the cached user and whether the slot is populated.
func (c *CurrentUser) Get() (*domain.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil, false
	}
	clone := *c.user
	return &clone, true
}

// Set stores user as the current slot value. Last writer wins; racing
// resolution paths converge on the same identity so no stronger ordering is
// needed.
func (c *CurrentUser) Set(user *domain.User) {
	var clone *domain.User
	if user != nil {
		cp := *user
		clone = &cp
	}
	c.mu.Lock()
	c.user = clone
	c.mu.Unlock()
}

// Clear empties the slot. Called on logout and on fatal resolution failure
// so a later call resolves fresh instead of serving stale data.
func (c *CurrentUser) Clear() {
	c.mu.Lock()
	c.user = nil
	c.mu.Unlock()
}
