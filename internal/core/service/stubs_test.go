package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

// memStore is an in-memory RecordStore that counts writes.
type memStore struct {
	mu      sync.Mutex
	users   []domain.User
	writes  int
	loadErr error
	saveErr error
}

func (m *memStore) Load(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return domain.CloneUsers(m.users), nil
}

func (m *memStore) ReplaceAll(_ context.Context, users []domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.users = domain.CloneUsers(users)
	m.writes++
	return nil
}

func (m *memStore) get(t *testing.T, username string) domain.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u.Clone()
		}
	}
	t.Fatalf("user %q not in store", username)
	return domain.User{}
}

type sentMail struct {
	to, subject, body string
}

// stubNotifier records messages and fails when err is set.
type stubNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *stubNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{to, subject, body})
	return nil
}

func (n *stubNotifier) last(t *testing.T) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatalf("expected a message to be sent")
	}
	return n.sent[len(n.sent)-1]
}

type stubThrottle struct {
	allow bool
	err   error
	calls int
}

func (s *stubThrottle) Allow(_ context.Context, _ string) (bool, error) {
	s.calls++
	return s.allow, s.err
}

var errBoom = errors.New("boom")

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	superadmin   = "lucas.sureira"
	superPass    = "Str0ng!Pass"
	superEmail   = "lucas@frotas.example"
	testBaseURL  = "https://frotas.example"
	anaPassword  = "GoodPass1!"
	anaEmail     = "ana@frotas.example"
	rotatedPass  = "NewPass2@xy"
	thirdPasswd  = "Another3#Pw"
	adminPasswd  = "AdminPass4$"
	adminAccount = "marta"
)

func testSettings() *Settings {
	return &Settings{
		SuperadminUsername: superadmin,
		SuperadminEmail:    superEmail,
		DefaultPassword:    superPass,
		PasswordMaxAge:     90 * 24 * time.Hour,
		ResetTokenTTL:      24 * time.Hour,
		BcryptCost:         bcrypt.MinCost,
		BaseURL:            testBaseURL,
	}
}

type fixture struct {
	store    *memStore
	notifier *stubNotifier
	svc      *AccessService
}

// newFixture returns a service over a store holding a bootstrapped
// superadmin who has already accepted the terms.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &memStore{}
	settings := testSettings()

	if err := NewSeeder(store, settings, zerolog.Nop()).Run(context.Background(), t0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	notifier := &stubNotifier{}
	svc, err := NewAccessService(store, notifier, settings, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAccessService: %v", err)
	}
	if _, err := svc.AcceptTerms(context.Background(), superadmin, t0); err != nil {
		t.Fatalf("AcceptTerms: %v", err)
	}
	return &fixture{store: store, notifier: notifier, svc: svc}
}

// activeUser registers, approves and accepts terms for username.
func (f *fixture) activeUser(t *testing.T, username, password, email string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registerInput(username, password, email), t0); err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	if err := f.svc.Approve(ctx, superadmin, username, t0); err != nil {
		t.Fatalf("Approve(%s): %v", username, err)
	}
	if _, err := f.svc.AcceptTerms(ctx, username, t0); err != nil {
		t.Fatalf("AcceptTerms(%s): %v", username, err)
	}
}
