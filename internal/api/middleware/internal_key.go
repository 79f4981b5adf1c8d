package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// KeyHeader carries the pre-shared key for the /internal endpoints.
const KeyHeader = "X-Internal-Key"

// InternalKey guards the internal endpoints with a pre-shared key checked
// against its bcrypt hash. An empty hash disables the surface entirely
// rather than leaving it open.
func InternalKey(keyHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if keyHash == "" {
				return echo.NewHTTPError(http.StatusNotFound, "not found")
			}

			key := c.Request().Header.Get(KeyHeader)
			if key == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing internal key")
			}
			if bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid internal key")
			}

			return next(c)
		}
	}
}
