package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Infrastructure errors.
var (
	ErrStoreCorrupt     = errors.New("user store corrupt")
	ErrStoreUnavailable = errors.New("user store unavailable")
)

// ErrInvalidCredentials is the single externally visible class for unknown
// usernames and wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

var (
	ErrNotFound      = fmt.Errorf("%w: user not found", ErrInvalidCredentials)
	ErrBadCredential = fmt.Errorf("%w: password mismatch", ErrInvalidCredentials)

	ErrDisabled      = errors.New("account disabled")
	ErrPending       = errors.New("account pending approval")
	ErrAlreadyExists = errors.New("user already exists")
	ErrForbidden     = errors.New("access forbidden")
	ErrInvalidState  = errors.New("invalid account state")

	// ErrNoSuchUser is returned to admins addressing an unknown target.
	ErrNoSuchUser      = errors.New("no such user")
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidEmail    = errors.New("invalid email address")

	// ErrNotificationFailed is returned when an admin-requested mail could
	// not be handed to the gateway. Any state change has already been stored.
	ErrNotificationFailed = errors.New("notification could not be delivered")
)

// ErrInvalidToken is the single externally visible class for reset token
// failures. The wrapped variants exist for logging only.
var ErrInvalidToken = errors.New("invalid or expired reset token")

var (
	ErrTokenMissing  = fmt.Errorf("%w: no token outstanding", ErrInvalidToken)
	ErrTokenExpired  = fmt.Errorf("%w: token expired", ErrInvalidToken)
	ErrTokenMismatch = fmt.Errorf("%w: token mismatch", ErrInvalidToken)
)

// ErrWeakDefaultPassword is fatal at startup.
var ErrWeakDefaultPassword = errors.New("configured superadmin default password violates password policy")

// ErrPolicyViolation matches any *PolicyViolation via errors.Is.
var ErrPolicyViolation = errors.New("password policy violation")

// PolicyViolation lists every rule a candidate password failed.
type PolicyViolation struct {
	Reasons []string
}

func (p *PolicyViolation) Error() string {
	return ErrPolicyViolation.Error() + ": " + strings.Join(p.Reasons, "; ")
}

func (p *PolicyViolation) Is(target error) bool {
	return target == ErrPolicyViolation
}
