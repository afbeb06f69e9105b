package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vamosfrotas/fleet-access/internal/api/session"
	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

// Context keys set by Auth.
const (
	KeyUsername = "username"
	KeyState    = "state"
)

// Auth validates the bearer session token and injects the username and login
// state into the context.
func Auth(sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := sessions.Parse(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(KeyUsername, claims.Subject)
			c.Set(KeyState, claims.State)

			return next(c)
		}
	}
}

// RequireState admits only sessions in one of the given login states.
func RequireState(states ...domain.LoginState) echo.MiddlewareFunc {
	allowed := make(map[domain.LoginState]struct{}, len(states))
	for _, s := range states {
		allowed[s] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			state, _ := c.Get(KeyState).(domain.LoginState)
			if _, ok := allowed[state]; !ok {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "complete the pending login step first",
					"state": string(state),
				})
			}
			return next(c)
		}
	}
}
