package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UsernameKey is the context key for storing the authenticated username
	UsernameKey ContextKey = "username"
)

// ExtractUsername is a middleware that extracts the X-User-ID header
// and stores it in the request context.
//
// attachd sits behind the wiki's page/permission service, which
// authenticates the user and verifies edit capability before forwarding
// the request; this middleware only carries the identity through for
// audit fields and per-user rate limiting.
//
// Usage:
//
//	e := echo.New()
//	e.Use(middleware.ExtractUsername())
func ExtractUsername() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get("X-User-ID")

			if username != "" {
				c.Set(string(UsernameKey), username)
			}

			return next(c)
		}
	}
}

// RequireUsername is the strict variant for mutating routes: uploads
// and deletes must carry an authenticated identity
func RequireUsername() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get("X-User-ID")

			if username == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "X-User-ID header is required",
				})
			}

			c.Set(string(UsernameKey), username)
			return next(c)
		}
	}
}

// GetUsername retrieves the authenticated username from the request
// context; empty when the request was anonymous
func GetUsername(c echo.Context) string {
	if username, ok := c.Get(string(UsernameKey)).(string); ok {
		return username
	}
	return ""
}
