// Package token issues and validates single-use password reset tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

const (
	// 32 random bytes, 256 bits of entropy.
	tokenBytes = 32

	DefaultTTL = 24 * time.Hour
)

// Issued is a freshly minted token. Value goes to the user; Record is what
// gets persisted.
type Issued struct {
	Value  string
	Record domain.ResetToken
}

// Issuer mints tokens valid for TTL.
type Issuer struct {
	TTL time.Duration
}

func NewIssuer(ttl time.Duration) Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Issuer{TTL: ttl}
}

// Issue returns a URL-safe random token expiring at now+TTL.
func (i Issuer) Issue(now time.Time) (Issued, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return Issued{}, fmt.Errorf("generate reset token: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(buf)
	return Issued{
		Value: value,
		Record: domain.ResetToken{
			Digest:    Digest(value),
			ExpiresAt: now.Add(i.TTL).UTC(),
		},
	}, nil
}

// Validate checks presented against the outstanding token. The returned
// error is one of domain.ErrTokenMissing, ErrTokenExpired or ErrTokenMismatch,
// all of which match domain.ErrInvalidToken.
func Validate(outstanding *domain.ResetToken, presented string, now time.Time) error {
	if outstanding == nil || outstanding.Digest == "" {
		return domain.ErrTokenMissing
	}
	if now.After(outstanding.ExpiresAt) {
		return domain.ErrTokenExpired
	}
	if subtle.ConstantTimeCompare([]byte(Digest(presented)), []byte(outstanding.Digest)) != 1 {
		return domain.ErrTokenMismatch
	}
	return nil
}

// Digest is the hex SHA-256 of a raw token.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
