// Package session issues and verifies the signed tokens that carry a login
// outcome between requests.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

const issuer = "fleet-access"

var ErrInvalidSession = errors.New("invalid session token")

// Claims identifies the user and the login state reached.
type Claims struct {
	State domain.LoginState `json:"state"`
	jwt.RegisteredClaims
}

// Manager signs HS256 tokens valid for TTL.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Issue returns a signed token for username in state.
func (m *Manager) Issue(username string, state domain.LoginState, now time.Time) (string, error) {
	claims := Claims{
		State: state,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, algorithm, issuer and expiry.
func (m *Manager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tkn.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	switch claims.State {
	case domain.StateTermsPending, domain.StatePasswordExpired, domain.StateAuthenticated:
	default:
		return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidSession, claims.State)
	}
	return claims, nil
}
