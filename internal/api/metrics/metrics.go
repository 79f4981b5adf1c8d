// Package metrics defines and registers all custom Prometheus metrics for the
// auth gateway. It is the single source of truth for metric names, labels,
// and help strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authcore"

// ── Session metrics ───────────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Label:
//   - result: "ok", "invalid_credentials", "unavailable", "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// SessionCacheTotal counts current-user cache lookups.
// Label:
//   - result: "hit" (served from the slot) or "miss" (resolved over the network)
var SessionCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_cache_total",
		Help:      "Total number of current-user cache lookups, by result (hit/miss).",
	},
	[]string{"result"},
)

// SessionEventsTotal counts auth-state events observed from the identity
// provider client.
// Label:
//   - event: "SIGNED_IN", "SIGNED_OUT", "TOKEN_REFRESHED"
var SessionEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_events_total",
		Help:      "Total number of auth-state events processed, by event kind.",
	},
	[]string{"event"},
)

// ── Provisioning metrics ──────────────────────────────────────────────────────

// ProvisioningTotal counts provisioning resolutions.
// Label:
//   - outcome: "found", "created", "converged" (lost the creation race,
//     re-read the winner's row), "unavailable", "error"
var ProvisioningTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provisioning_total",
		Help:      "Total number of profile provisioning resolutions, by outcome.",
	},
	[]string{"outcome"},
)

// ── Profile store metrics ─────────────────────────────────────────────────────

// StoreRequestsTotal counts individual profile-store HTTP attempts.
// Labels:
//   - op: "fetch_profile" or "create_profile"
//   - result: "ok", "not_found", "conflict", "unavailable", "error"
var StoreRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_requests_total",
		Help:      "Total number of profile store HTTP attempts, by operation and result.",
	},
	[]string{"op", "result"},
)

// StoreRetriesTotal counts retried profile-store attempts (attempt 2+).
// Label:
//   - op: "fetch_profile" or "create_profile"
var StoreRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_retries_total",
		Help:      "Total number of retried profile store attempts, by operation.",
	},
	[]string{"op"},
)

// ── Hook metrics ──────────────────────────────────────────────────────────────

// HookErrorsTotal counts best-effort side effects that failed. These never
// fail the caller-visible result, so the counter is the only trace besides
// logs.
// Label:
//   - hook: recorder name, e.g. "audit", "last_seen"
var HookErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hook_errors_total",
		Help:      "Total number of post-resolution hook failures, by hook.",
	},
	[]string{"hook"},
)
