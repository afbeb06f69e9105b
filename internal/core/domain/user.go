package domain

import "time"

// Status is the lifecycle state of an account.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDisabled:
		return true
	}
	return false
}

// LoginState is the outcome of a successful credential check. Anything other
// than StateAuthenticated requires a follow-up step before a session is granted.
type LoginState string

const (
	StateTermsPending    LoginState = "terms_pending"
	StatePasswordExpired LoginState = "password_expired"
	StateAuthenticated   LoginState = "authenticated"
)

// ResetToken is an outstanding password-reset credential. Only the digest of
// the raw token is kept.
type ResetToken struct {
	Digest    string
	ExpiresAt time.Time
}

// User is one persisted account record, keyed by Username (case-sensitive).
type User struct {
	Username        string      `json:"username"`
	Email           string      `json:"email,omitempty"`
	PasswordHash    string      `json:"-"`
	PasswordSetAt   time.Time   `json:"password_set_at"`
	Status          Status      `json:"status"`
	IsAdmin         bool        `json:"is_admin"`
	MustRotate      bool        `json:"must_rotate"`
	ResetToken      *ResetToken `json:"-"`
	TermsAcceptedAt *time.Time  `json:"terms_accepted_at,omitempty"`

	// ActivateOnSet marks an approved account that has no password yet. It
	// becomes Active when the invite link is used.
	ActivateOnSet bool `json:"activate_on_set"`
}

// Clone returns a deep copy so callers can mutate a record set without
// aliasing the one they loaded.
func (u User) Clone() User {
	if u.ResetToken != nil {
		rt := *u.ResetToken
		u.ResetToken = &rt
	}
	if u.TermsAcceptedAt != nil {
		ts := *u.TermsAcceptedAt
		u.TermsAcceptedAt = &ts
	}
	return u
}

// CloneUsers deep-copies a record set.
func CloneUsers(users []User) []User {
	out := make([]User, len(users))
	for i := range users {
		out[i] = users[i].Clone()
	}
	return out
}
