package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vamosfrotas/fleet-access/internal/api/middleware"
	"github.com/vamosfrotas/fleet-access/internal/api/session"
	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
)

// stubAccess implements ports.AccessService with overridable function fields.
// Unset fields panic so a test notices an unexpected call.
type stubAccess struct {
	login          func(ctx context.Context, username, password string, now time.Time) (*ports.LoginResult, error)
	register       func(ctx context.Context, in ports.RegisterInput, now time.Time) (*ports.RegisterResult, error)
	requestReset   func(ctx context.Context, username string, now time.Time) error
	completeReset  func(ctx context.Context, username, token, newPassword string, now time.Time) error
	acceptTerms    func(ctx context.Context, username string, now time.Time) (domain.LoginState, error)
	changePassword func(ctx context.Context, username, current, newPassword string, now time.Time) (domain.LoginState, error)
	approve        func(ctx context.Context, actor, username string, now time.Time) error
	sendResetLink  func(ctx context.Context, actor, username string, now time.Time) error
	setAdmin       func(ctx context.Context, actor, username string, isAdmin bool) error
	setStatus      func(ctx context.Context, actor, username string, status domain.Status) error
	createUser     func(ctx context.Context, actor string, in ports.CreateUserInput, now time.Time) (*domain.User, error)
	deleteUser     func(ctx context.Context, actor, username string) error
	listUsers      func(ctx context.Context, actor string, status domain.Status) ([]domain.User, error)
}

var _ ports.AccessService = (*stubAccess)(nil)

func (s *stubAccess) Login(ctx context.Context, username, password string, now time.Time) (*ports.LoginResult, error) {
	return s.login(ctx, username, password, now)
}

func (s *stubAccess) Register(ctx context.Context, in ports.RegisterInput, now time.Time) (*ports.RegisterResult, error) {
	return s.register(ctx, in, now)
}

func (s *stubAccess) RequestReset(ctx context.Context, username string, now time.Time) error {
	return s.requestReset(ctx, username, now)
}

func (s *stubAccess) CompleteReset(ctx context.Context, username, token, newPassword string, now time.Time) error {
	return s.completeReset(ctx, username, token, newPassword, now)
}

func (s *stubAccess) AcceptTerms(ctx context.Context, username string, now time.Time) (domain.LoginState, error) {
	return s.acceptTerms(ctx, username, now)
}

func (s *stubAccess) ChangePassword(ctx context.Context, username, current, newPassword string, now time.Time) (domain.LoginState, error) {
	return s.changePassword(ctx, username, current, newPassword, now)
}

func (s *stubAccess) Approve(ctx context.Context, actor, username string, now time.Time) error {
	return s.approve(ctx, actor, username, now)
}

func (s *stubAccess) SendResetLink(ctx context.Context, actor, username string, now time.Time) error {
	return s.sendResetLink(ctx, actor, username, now)
}

func (s *stubAccess) SetAdmin(ctx context.Context, actor, username string, isAdmin bool) error {
	return s.setAdmin(ctx, actor, username, isAdmin)
}

func (s *stubAccess) SetStatus(ctx context.Context, actor, username string, status domain.Status) error {
	return s.setStatus(ctx, actor, username, status)
}

func (s *stubAccess) CreateUser(ctx context.Context, actor string, in ports.CreateUserInput, now time.Time) (*domain.User, error) {
	return s.createUser(ctx, actor, in, now)
}

func (s *stubAccess) DeleteUser(ctx context.Context, actor, username string) error {
	return s.deleteUser(ctx, actor, username)
}

func (s *stubAccess) ListUsers(ctx context.Context, actor string, status domain.Status) ([]domain.User, error) {
	return s.listUsers(ctx, actor, status)
}

const testSecret = "test-secret"

func newSessions() *session.Manager {
	return session.NewManager(testSecret, time.Hour)
}

// newContext builds an echo context for a JSON request. When username is
// set the context carries what the Auth middleware would have injected.
func newContext(t *testing.T, method, target, body, username string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	e.Validator = NewValidator()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if username != "" {
		c.Set(middleware.KeyUsername, username)
		c.Set(middleware.KeyState, domain.StateAuthenticated)
	}
	return c, rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

