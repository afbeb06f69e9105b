// Package policy validates and hashes account passwords. It has no storage
// dependencies.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

const (
	MinLength = 10

	// SpecialChars is the set a password must draw at least one symbol from.
	SpecialChars = "!@#$%^&*()_+-=[]{};':\",.<>/?\\|`~"

	DefaultMaxAge = 90 * 24 * time.Hour
)

// Policy carries the tunable parts of password handling.
type Policy struct {
	Cost   int
	MaxAge time.Duration
}

// New returns a Policy, falling back to bcrypt.DefaultCost and DefaultMaxAge
// for non-positive values.
func New(cost int, maxAge time.Duration) Policy {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return Policy{Cost: cost, MaxAge: maxAge}
}

// Validate checks length and the four character classes.
func Validate(candidate string) error {
	if reasons := classReasons(candidate); len(reasons) > 0 {
		return &domain.PolicyViolation{Reasons: reasons}
	}
	return nil
}

// ValidateFor runs Validate and additionally rejects passwords that embed the
// username or the local part of the email address.
func ValidateFor(candidate, username, email string) error {
	reasons := classReasons(candidate)
	lower := strings.ToLower(candidate)

	if u := strings.ToLower(strings.TrimSpace(username)); u != "" && strings.Contains(lower, u) {
		reasons = append(reasons, "password must not contain the username")
	}
	if local, _, _ := strings.Cut(email, "@"); local != "" {
		if l := strings.ToLower(strings.TrimSpace(local)); l != "" && strings.Contains(lower, l) {
			reasons = append(reasons, "password must not contain the email local part")
		}
	}

	if len(reasons) > 0 {
		return &domain.PolicyViolation{Reasons: reasons}
	}
	return nil
}

func classReasons(candidate string) []string {
	var upper, lowerCase, digit, special bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lowerCase = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(SpecialChars, r):
			special = true
		}
	}

	var reasons []string
	if len([]rune(candidate)) < MinLength {
		reasons = append(reasons, fmt.Sprintf("password must be at least %d characters", MinLength))
	}
	if !upper {
		reasons = append(reasons, "password must contain an uppercase letter")
	}
	if !lowerCase {
		reasons = append(reasons, "password must contain a lowercase letter")
	}
	if !digit {
		reasons = append(reasons, "password must contain a digit")
	}
	if !special {
		reasons = append(reasons, "password must contain a special character")
	}
	return reasons
}

// Hash returns a salted bcrypt digest; the salt is embedded in the result.
func (p Policy) Hash(candidate string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(candidate), p.Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", &domain.PolicyViolation{Reasons: []string{"password must be at most 72 bytes"}}
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares candidate against a stored digest. An empty digest never
// verifies.
func Verify(candidate, passwordHash string) bool {
	if passwordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(candidate)) == nil
}

// IsExpired reports whether the rotation window has elapsed. A zero setAt
// counts as expired.
func (p Policy) IsExpired(setAt, now time.Time) bool {
	if setAt.IsZero() {
		return true
	}
	return now.Sub(setAt) > p.MaxAge
}
