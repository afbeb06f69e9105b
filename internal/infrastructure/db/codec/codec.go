// Package codec converts a user record set to and from its persisted line form:
//
//	username,password_hash,status,is_admin,password_set_at,terms_accepted_at,reset_token_digest,reset_token_expires_at,email,must_rotate,activate_on_set
//
// One line per record, no header. Optional fields are empty when absent and
// timestamps are RFC 3339 in UTC. Lines carrying only the first eight or ten
// columns are accepted on read.
package codec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

const (
	legacyFields = 8
	v1Fields     = 10
	Fields       = 11
)

// Encode renders users in order.
func Encode(users []domain.User) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, u := range users {
		if err := w.Write(row(u)); err != nil {
			return nil, fmt.Errorf("encode %q: %w", u.Username, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses data produced by Encode. Any malformed record fails the whole
// set with an error wrapping domain.ErrStoreCorrupt. Empty input is an empty
// set.
func Decode(data []byte) ([]domain.User, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var users []domain.User
	seen := make(map[string]struct{})
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreCorrupt, err)
		}
		u, err := parse(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrStoreCorrupt, line, err)
		}
		if _, dup := seen[u.Username]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate username %q", domain.ErrStoreCorrupt, line, u.Username)
		}
		seen[u.Username] = struct{}{}
		users = append(users, u)
	}
	return users, nil
}

func row(u domain.User) []string {
	var digest, expires string
	if u.ResetToken != nil {
		digest = u.ResetToken.Digest
		expires = formatTime(u.ResetToken.ExpiresAt)
	}
	var terms string
	if u.TermsAcceptedAt != nil {
		terms = formatTime(*u.TermsAcceptedAt)
	}
	var setAt string
	if !u.PasswordSetAt.IsZero() {
		setAt = formatTime(u.PasswordSetAt)
	}
	return []string{
		u.Username,
		u.PasswordHash,
		string(u.Status),
		strconv.FormatBool(u.IsAdmin),
		setAt,
		terms,
		digest,
		expires,
		u.Email,
		strconv.FormatBool(u.MustRotate),
		strconv.FormatBool(u.ActivateOnSet),
	}
}

func parse(rec []string) (domain.User, error) {
	if len(rec) != Fields && len(rec) != v1Fields && len(rec) != legacyFields {
		return domain.User{}, fmt.Errorf("expected %d fields, got %d", Fields, len(rec))
	}

	u := domain.User{
		Username:     rec[0],
		PasswordHash: rec[1],
		Status:       domain.Status(rec[2]),
	}
	if u.Username == "" {
		return u, errors.New("empty username")
	}
	if !u.Status.Valid() {
		return u, fmt.Errorf("unknown status %q", rec[2])
	}

	var err error
	if u.IsAdmin, err = strconv.ParseBool(rec[3]); err != nil {
		return u, fmt.Errorf("is_admin: %w", err)
	}
	if rec[4] != "" {
		if u.PasswordSetAt, err = parseTime(rec[4]); err != nil {
			return u, fmt.Errorf("password_set_at: %w", err)
		}
	}
	if rec[5] != "" {
		ts, err := parseTime(rec[5])
		if err != nil {
			return u, fmt.Errorf("terms_accepted_at: %w", err)
		}
		u.TermsAcceptedAt = &ts
	}

	switch {
	case rec[6] == "" && rec[7] == "":
	case rec[6] == "" || rec[7] == "":
		return u, errors.New("reset token fields must be both present or both empty")
	default:
		exp, err := parseTime(rec[7])
		if err != nil {
			return u, fmt.Errorf("reset_token_expires_at: %w", err)
		}
		u.ResetToken = &domain.ResetToken{Digest: rec[6], ExpiresAt: exp}
	}

	if len(rec) >= v1Fields {
		u.Email = rec[8]
		if u.MustRotate, err = strconv.ParseBool(rec[9]); err != nil {
			return u, fmt.Errorf("must_rotate: %w", err)
		}
	}
	if len(rec) == Fields {
		if u.ActivateOnSet, err = strconv.ParseBool(rec[10]); err != nil {
			return u, fmt.Errorf("activate_on_set: %w", err)
		}
	}
	return u, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
