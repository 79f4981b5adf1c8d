package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kaiin-app/authcore/internal/core/domain"
)

// CurrentUserFunc resolves the gateway's current user; nil means
// unauthenticated.
type CurrentUserFunc func(ctx context.Context) (*domain.User, error)

// RequireElevated rejects requests unless the gateway's current user holds
// an elevated role (manager or admin). Coarse check only; no per-resource
// policy here.
func RequireElevated(currentUser CurrentUserFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := currentUser(c.Request().Context())
			if err != nil {
				return err
			}
			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !domain.IsElevated(user.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}
