package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vamosfrotas/fleet-access/internal/api/metrics"
	"github.com/vamosfrotas/fleet-access/internal/api/session"
	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
)

// AuthHandler exposes login, registration and the password lifecycle.
// Errors are returned to the HTTP error handler, which owns the mapping to
// status codes and the collapsing of enumeration-sensitive causes.
type AuthHandler struct {
	access   ports.AccessService
	sessions *session.Manager
	now      func() time.Time
}

func NewAuthHandler(access ports.AccessService, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{access: access, sessions: sessions, now: time.Now}
}

// Login verifies credentials and returns a session token carrying the login
// state reached. Only "authenticated" sessions can use the admin routes.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	now := h.now()
	res, err := h.access.Login(c.Request().Context(), req.Username, req.Password, now)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.LoginOutcome("", err)).Inc()
		return err
	}
	metrics.LoginAttemptsTotal.WithLabelValues(metrics.LoginOutcome(res.State, nil)).Inc()

	user := toUserResponse(res.User)
	return h.respondSession(c, res.User.Username, res.State, &user, now)
}

// Register creates a pending account awaiting admin approval.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.access.Register(c.Request().Context(), ports.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	}, h.now())
	metrics.RegistrationsTotal.WithLabelValues(registrationOutcome(err)).Inc()
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, registerResponse{
		User:     toUserResponse(res.User),
		Message:  "registration received, pending approval",
		Warnings: res.Warnings,
	})
}

func registrationOutcome(err error) string {
	if err == nil {
		return "created"
	}
	return metrics.Outcome(err)
}

// RequestReset mails a reset link. The response is identical whether or not
// the account exists.
//
// @Summary      Request a password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      resetRequest  true  "Account to reset"
// @Success      202   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/reset/request [post]
func (h *AuthHandler) RequestReset(c echo.Context) error {
	var req resetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err := h.access.RequestReset(c.Request().Context(), req.Username, h.now())
	metrics.PasswordResetsTotal.WithLabelValues("request", metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, messageResponse{
		Message: "if the account exists, a reset link has been sent",
	})
}

// CompleteReset consumes a reset token and sets a new password.
//
// @Summary      Complete a password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      completeResetRequest  true  "Token and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/reset/complete [post]
func (h *AuthHandler) CompleteReset(c echo.Context) error {
	var req completeResetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err := h.access.CompleteReset(c.Request().Context(), req.Username, req.Token, req.NewPassword, h.now())
	metrics.PasswordResetsTotal.WithLabelValues("complete", metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password updated, sign in with the new password"})
}

// AcceptTerms records terms acceptance and returns a session for the next
// state.
//
// @Summary      Accept the terms of use
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /auth/terms [post]
func (h *AuthHandler) AcceptTerms(c echo.Context) error {
	username, _, err := ctxSession(c)
	if err != nil {
		return err
	}

	now := h.now()
	state, err := h.access.AcceptTerms(c.Request().Context(), username, now)
	if err != nil {
		return err
	}
	return h.respondSession(c, username, state, nil, now)
}

// ChangePassword rotates the caller's password. It is the follow-up step for
// the "password_expired" state.
//
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "Current and new password"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /auth/password [post]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	username, _, err := ctxSession(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	now := h.now()
	state, err := h.access.ChangePassword(c.Request().Context(), username, req.CurrentPassword, req.NewPassword, now)
	if err != nil {
		return err
	}
	return h.respondSession(c, username, state, nil, now)
}

func (h *AuthHandler) respondSession(c echo.Context, username string, state domain.LoginState, user *userResponse, now time.Time) error {
	token, err := h.sessions.Issue(username, state, now)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{Token: token, State: string(state), User: user})
}
