package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Collapses unknown-user and wrong-password into one response, and every
//     reset token failure into another.
//   - Logs infrastructure and unexpected errors without leaking details.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	var pv *domain.PolicyViolation
	if errors.As(err, &pv) {
		return http.StatusUnprocessableEntity, errorResponse{Error: domain.ErrPolicyViolation.Error(), Reasons: pv.Reasons}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		logCause(log, c, err, zerolog.DebugLevel)
		return http.StatusUnauthorized, errorResponse{Error: "invalid credentials"}
	case errors.Is(err, domain.ErrInvalidToken):
		logCause(log, c, err, zerolog.InfoLevel)
		return http.StatusBadRequest, errorResponse{Error: "invalid or expired reset token"}
	case errors.Is(err, domain.ErrPending):
		return http.StatusForbidden, errorResponse{Error: "account pending approval"}
	case errors.Is(err, domain.ErrDisabled):
		return http.StatusForbidden, errorResponse{Error: "account disabled"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: "access forbidden"}
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, errorResponse{Error: "user already exists"}
	case errors.Is(err, domain.ErrNoSuchUser):
		return http.StatusNotFound, errorResponse{Error: "user not found"}
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrInvalidUsername), errors.Is(err, domain.ErrInvalidEmail):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrNotificationFailed):
		logCause(log, c, err, zerolog.ErrorLevel)
		return http.StatusBadGateway, errorResponse{Error: domain.ErrNotificationFailed.Error()}
	case errors.Is(err, domain.ErrStoreCorrupt), errors.Is(err, domain.ErrStoreUnavailable):
		logCause(log, c, err, zerolog.ErrorLevel)
		return http.StatusServiceUnavailable, errorResponse{Error: "service unavailable, try again"}
	}

	// Unexpected error: log the real cause, return a generic message.
	logCause(log, c, err, zerolog.ErrorLevel)
	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}

func logCause(log zerolog.Logger, c echo.Context, err error, level zerolog.Level) {
	log.WithLevel(level).
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("request failed")
}
