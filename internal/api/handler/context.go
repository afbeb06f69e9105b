package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vamosfrotas/fleet-access/internal/api/middleware"
	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

// ctxSession extracts the identity injected by the Auth middleware. A missing
// username means the middleware did not run; reject with 401.
func ctxSession(c echo.Context) (username string, state domain.LoginState, err error) {
	username, _ = c.Get(middleware.KeyUsername).(string)
	if username == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	state, _ = c.Get(middleware.KeyState).(domain.LoginState)
	return username, state, nil
}

// bindAndValidate decodes the request body into req and runs struct
// validation. Both failures are reported as 400.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
