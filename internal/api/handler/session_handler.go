package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kaiin-app/authcore/internal/core/domain"
	"github.com/kaiin-app/authcore/internal/core/ports"
)

// SessionHandler exposes the reconciler over HTTP. One gateway process owns
// one session; the UI talks to these endpoints instead of the identity
// provider directly.
type SessionHandler struct {
	sessions ports.SessionService
}

func NewSessionHandler(sessions ports.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name"`
	Role     string `json:"role" validate:"omitempty,oneof=member fp manager admin"`
}

type recoverRequest struct {
	Email      string `json:"email" validate:"required,email"`
	RedirectTo string `json:"redirect_to" validate:"omitempty,url"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

type userResponse struct {
	User *domain.User `json:"user"`
}

// Login authenticates and resolves the current user.
//
// @Summary      Login
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  userResponse
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /session [post]
func (h *SessionHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, err := h.sessions.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{User: user})
}

// Logout ends the session. Always succeeds from the caller's perspective.
//
// @Summary      Logout
// @Tags         session
// @Success      204
// @Router       /session [delete]
func (h *SessionHandler) Logout(c echo.Context) error {
	if err := h.sessions.Logout(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Current returns the reconciled current user, 204 when unauthenticated.
//
// @Summary      Current user
// @Tags         session
// @Produce      json
// @Success      200  {object}  userResponse
// @Success      204
// @Failure      503  {object}  map[string]string
// @Router       /session/user [get]
func (h *SessionHandler) Current(c echo.Context) error {
	user, err := h.sessions.CurrentUser(c.Request().Context())
	if err != nil {
		return err
	}
	if user == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, userResponse{User: user})
}

// Refresh forces a token refresh and returns the reconciled user.
//
// @Summary      Refresh session
// @Tags         session
// @Produce      json
// @Success      200  {object}  userResponse
// @Failure      401  {object}  map[string]string
// @Router       /session/refresh [post]
func (h *SessionHandler) Refresh(c echo.Context) error {
	user, err := h.sessions.Refresh(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{User: user})
}

// SignUp registers a new account. 202 means the provider requires email
// confirmation before a session (and profile) exists.
//
// @Summary      Sign up
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      signUpRequest  true  "Registration details"
// @Success      201   {object}  userResponse
// @Success      202
// @Failure      400   {object}  map[string]string
// @Router       /signup [post]
func (h *SessionHandler) SignUp(c echo.Context) error {
	var req signUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, err := h.sessions.SignUp(c.Request().Context(), req.Email, req.Password, ports.SessionMetadata{
		Name: req.Name,
		Role: req.Role,
	})
	if err != nil {
		return err
	}
	if user == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusCreated, userResponse{User: user})
}

// Recover triggers the password recovery mail flow.
//
// @Summary      Request password reset
// @Tags         session
// @Accept       json
// @Success      202
// @Failure      400  {object}  map[string]string
// @Router       /recover [post]
func (h *SessionHandler) Recover(c echo.Context) error {
	var req recoverRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.sessions.RequestPasswordReset(c.Request().Context(), req.Email, req.RedirectTo); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

// UpdatePassword changes the current account's password.
//
// @Summary      Update password
// @Tags         session
// @Accept       json
// @Success      204
// @Failure      401  {object}  map[string]string
// @Router       /password [put]
func (h *SessionHandler) UpdatePassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.sessions.UpdatePassword(c.Request().Context(), req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
