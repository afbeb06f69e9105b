package token

import (
	"errors"
	"testing"
	"time"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

func TestIssue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuer(24 * time.Hour)

	a, err := iss.Issue(now)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	b, _ := iss.Issue(now)

	if len(a.Value) < 43 {
		t.Fatalf("token too short for 256 bits: %q", a.Value)
	}
	if a.Value == b.Value {
		t.Fatalf("expected distinct tokens")
	}
	if !a.Record.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry: %s", a.Record.ExpiresAt)
	}
	if a.Record.Digest == a.Value || a.Record.Digest != Digest(a.Value) {
		t.Fatalf("record must hold the digest, not the raw token")
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issued, err := NewIssuer(time.Hour).Issue(now)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	cases := []struct {
		name        string
		outstanding *domain.ResetToken
		presented   string
		at          time.Time
		want        error
	}{
		{"valid", &issued.Record, issued.Value, now.Add(30 * time.Minute), nil},
		{"valid at exact expiry", &issued.Record, issued.Value, now.Add(time.Hour), nil},
		{"missing", nil, issued.Value, now, domain.ErrTokenMissing},
		{"expired", &issued.Record, issued.Value, now.Add(time.Hour + time.Second), domain.ErrTokenExpired},
		{"mismatch", &issued.Record, "not-the-token", now, domain.ErrTokenMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.outstanding, tc.presented, tc.at)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, domain.ErrInvalidToken) {
				t.Fatalf("expected error to collapse to ErrInvalidToken")
			}
		})
	}
}

func TestNewIssuer_DefaultTTL(t *testing.T) {
	if got := NewIssuer(0).TTL; got != DefaultTTL {
		t.Fatalf("expected %s, got %s", DefaultTTL, got)
	}
}
