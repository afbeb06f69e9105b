package service

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

// errSkipWrite lets an update callback finish without persisting.
var errSkipWrite = errors.New("skip write")

func indexOf(users []domain.User, username string) int {
	for i := range users {
		if users[i].Username == username {
			return i
		}
	}
	return -1
}

// update runs a serialized load-modify-replace cycle. The callback receives a
// private copy of the record set.
func (s *AccessService) update(ctx context.Context, fn func(users []domain.User) ([]domain.User, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	next, err := fn(domain.CloneUsers(users))
	if errors.Is(err, errSkipWrite) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.store.ReplaceAll(ctx, next)
}

// requireAdmin re-reads the actor from the current record set; session claims
// are never trusted for privilege checks.
func requireAdmin(users []domain.User, actor string) error {
	i := indexOf(users, actor)
	if i < 0 || !users[i].IsAdmin || users[i].Status != domain.StatusActive {
		return domain.ErrForbidden
	}
	return nil
}

func validUsername(username string) error {
	if username == "" || strings.TrimSpace(username) != username || hasControl(username) {
		return domain.ErrInvalidUsername
	}
	return nil
}

// validEmail accepts an empty address. Anything else must be a single
// address without whitespace or control characters.
func validEmail(email string) error {
	if email == "" {
		return nil
	}
	if strings.TrimSpace(email) != email || hasControl(email) || strings.ContainsAny(email, " ,") {
		return domain.ErrInvalidEmail
	}
	local, domainPart, ok := strings.Cut(email, "@")
	if !ok || local == "" || domainPart == "" || strings.Contains(domainPart, "@") {
		return domain.ErrInvalidEmail
	}
	return nil
}

func hasControl(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
