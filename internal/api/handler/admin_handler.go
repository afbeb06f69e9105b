package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vamosfrotas/fleet-access/internal/api/metrics"
	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
)

// AdminHandler exposes user management. The acting user comes from the
// session; admin rights are re-checked against the store by the service.
type AdminHandler struct {
	access ports.AccessService
	now    func() time.Time
}

func NewAdminHandler(access ports.AccessService) *AdminHandler {
	return &AdminHandler{access: access, now: time.Now}
}

// List handles GET /admin/users.
//
// @Summary      List users
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Filter by status (pending, active, disabled)"
// @Success      200     {object}  listUsersResponse
// @Failure      400     {object}  errorResponse
// @Failure      403     {object}  errorResponse
// @Router       /admin/users [get]
func (h *AdminHandler) List(c echo.Context) error {
	actor, _, err := ctxSession(c)
	if err != nil {
		return err
	}

	status := domain.Status(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be one of: pending active disabled")
	}

	users, err := h.access.ListUsers(c.Request().Context(), actor, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listUsersResponse{Users: toUserResponses(users), Total: len(users)})
}

// Create handles POST /admin/users. The account must rotate its password at
// first login. Without a password an invite link is mailed instead.
//
// @Summary      Create a user
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createUserRequest  true  "New account"
// @Success      201   {object}  userResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /admin/users [post]
func (h *AdminHandler) Create(c echo.Context) error {
	actor, _, err := ctxSession(c)
	if err != nil {
		return err
	}
	var req createUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	u, err := h.access.CreateUser(c.Request().Context(), actor, toCreateUserInput(req), h.now())
	metrics.AdminActionsTotal.WithLabelValues("create", metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toUserResponse(*u))
}

// Approve handles POST /admin/users/:username/approve.
//
// @Summary      Approve a pending account
// @Tags         admin
// @Security     BearerAuth
// @Param        username  path  string  true  "Username"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /admin/users/{username}/approve [post]
func (h *AdminHandler) Approve(c echo.Context) error {
	actor, _, err := ctxSession(c)
	if err != nil {
		return err
	}

	err = h.access.Approve(c.Request().Context(), actor, c.Param("username"), h.now())
	metrics.AdminActionsTotal.WithLabelValues("approve", metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SendResetLink handles POST /admin/users/:username/reset-link.
//
// @Summary      Mail a password reset link to a user
// @Tags         admin
// @Security     BearerAuth
// @Param        username  path  string  true  "Username"
// @Success      202
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Failure      502  {object}  errorResponse
// @Router       /admin/users/{username}/reset-link [post]
func (h *AdminHandler) SendResetLink(c echo.Context) error {
	actor, _, err := ctxSession(c)
	if err != nil {
		return err
	}

	err = h.access.SendResetLink(c.Request().Context(), actor, c.Param("username"), h.now())
	metrics.AdminActionsTotal.WithLabelValues("reset_link", metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

// SetAdmin handles PUT /admin/users/:username/admin.
//
// @Summary      Grant or revoke admin rights
// @Tags         admin
// @Accept       json
// @Security     BearerAuth
// @Param        username  path  string           true  "Username"
// @Param        body      body  setAdminRequest  true  "Admin flag"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /admin/users/{username}/admin [put]
func (h *AdminHandler) SetAdmin(c echo.Context) error {
	actor, _, err := ctxSession(c)
	if err != nil {
		return err
	}
	var req setAdminRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err = h.access.SetAdmin(c.Request().Context(), actor, c.Param("username"), *req.IsAdmin)
	metrics.AdminActionsTotal.WithLabelValues("set_admin", metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetStatus handles PUT /admin/users/:username/status.
//
// @Summary      Change account status
// @Tags         admin
// @Accept       json
// @Security     BearerAuth
// @Param        username  path  string            true  "Username"
// @Param        body      body  setStatusRequest  true  "New status"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /admin/users/{username}/status [put]
func (h *AdminHandler) SetStatus(c echo.Context) error {
	actor, _, err := ctxSession(c)
	if err != nil {
		return err
	}
	var req setStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err = h.access.SetStatus(c.Request().Context(), actor, c.Param("username"), domain.Status(req.Status))
	metrics.AdminActionsTotal.WithLabelValues("set_status", metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete handles DELETE /admin/users/:username.
//
// @Summary      Delete a user
// @Tags         admin
// @Security     BearerAuth
// @Param        username  path  string  true  "Username"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /admin/users/{username} [delete]
func (h *AdminHandler) Delete(c echo.Context) error {
	actor, _, err := ctxSession(c)
	if err != nil {
		return err
	}

	err = h.access.DeleteUser(c.Request().Context(), actor, c.Param("username"))
	metrics.AdminActionsTotal.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
