package ports

import (
	"context"
	"time"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

// RegisterInput is a self-registration request.
type RegisterInput struct {
	Username string
	Password string
	Email    string
}

// CreateUserInput is an admin-initiated account creation. Password is a
// temporary secret that must be rotated at first login. An empty Password
// sends an invite link to Email instead.
type CreateUserInput struct {
	Username string
	Password string
	Email    string
	IsAdmin  bool
	Activate bool
}

// LoginResult is returned for a successful credential check.
type LoginResult struct {
	User  domain.User
	State domain.LoginState
}

// RegisterResult carries the created record plus non-fatal warnings, such as
// an admin notification that could not be delivered.
type RegisterResult struct {
	User     domain.User
	Warnings []string
}

// AccessService is the access controller consumed by the presentation layer.
type AccessService interface {
	Login(ctx context.Context, username, password string, now time.Time) (*LoginResult, error)
	Register(ctx context.Context, in RegisterInput, now time.Time) (*RegisterResult, error)
	RequestReset(ctx context.Context, username string, now time.Time) error
	CompleteReset(ctx context.Context, username, token, newPassword string, now time.Time) error
	AcceptTerms(ctx context.Context, username string, now time.Time) (domain.LoginState, error)
	ChangePassword(ctx context.Context, username, current, newPassword string, now time.Time) (domain.LoginState, error)

	Approve(ctx context.Context, actor, username string, now time.Time) error
	SendResetLink(ctx context.Context, actor, username string, now time.Time) error
	SetAdmin(ctx context.Context, actor, username string, isAdmin bool) error
	SetStatus(ctx context.Context, actor, username string, status domain.Status) error
	CreateUser(ctx context.Context, actor string, in CreateUserInput, now time.Time) (*domain.User, error)
	DeleteUser(ctx context.Context, actor, username string) error
	ListUsers(ctx context.Context, actor string, status domain.Status) ([]domain.User, error)
}
