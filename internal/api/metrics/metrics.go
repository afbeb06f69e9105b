// Package metrics defines and registers the custom Prometheus metrics of the
// access API. It is the single source of truth for metric names, labels and
// help strings. Metrics register with the default registry on import.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

const namespace = "fleet_access"

// ── Login metrics ─────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts.
// Label:
//   - outcome: reached state ("terms_pending", "password_expired",
//     "authenticated") or failure class ("invalid_credentials", "pending",
//     "disabled", "error")
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// ── Account lifecycle metrics ─────────────────────────────────────────────────

// RegistrationsTotal counts self-registrations.
// Label:
//   - outcome: "created", "rejected" or "error"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of self-registration requests, by outcome.",
	},
	[]string{"outcome"},
)

// PasswordResetsTotal counts reset flow steps.
// Labels:
//   - step: "request" or "complete"
//   - outcome: "ok", "rejected" or "error"
var PasswordResetsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_resets_total",
		Help:      "Total number of password reset steps, by step and outcome.",
	},
	[]string{"step", "outcome"},
)

// AdminActionsTotal counts user-management operations.
// Labels:
//   - action: "approve", "set_admin", "set_status", "create", "delete"
//   - outcome: "ok", "rejected" or "error"
var AdminActionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admin_actions_total",
		Help:      "Total number of admin user-management actions, by action and outcome.",
	},
	[]string{"action", "outcome"},
)

// Outcome classifies err for the outcome label: "ok" for nil, "error" for
// infrastructure failures, "rejected" for everything else.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrStoreCorrupt),
		errors.Is(err, domain.ErrNotificationFailed):
		return "error"
	default:
		return "rejected"
	}
}

// LoginOutcome maps a login result to the LoginAttemptsTotal label.
func LoginOutcome(state domain.LoginState, err error) string {
	switch {
	case err == nil:
		return string(state)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrPending):
		return "pending"
	case errors.Is(err, domain.ErrDisabled):
		return "disabled"
	default:
		return "error"
	}
}
