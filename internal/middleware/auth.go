package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// UserContextKey is the echo context key holding the authenticated user id.
const UserContextKey = "user"

// TokenResolver maps a bearer token to a user id.
type TokenResolver interface {
	ResolveToken(token string) (userID string, ok bool)
}

// BearerAuth rejects requests without a valid "Authorization: Bearer" header.
// Browsers cannot set headers on websocket upgrades, so an access_token query
// parameter is accepted as well.
func BearerAuth(resolver TokenResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing bearer token")
			}

			userID, ok := resolver.ResolveToken(token)
			if !ok || userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid bearer token")
			}

			c.Set(UserContextKey, userID)
			return next(c)
		}
	}
}

// UserID returns the authenticated user id stored by BearerAuth.
func UserID(c echo.Context) string {
	id, _ := c.Get(UserContextKey).(string)
	return id
}

func bearerToken(r *http.Request) string {
	const prefix = "bearer "
	header := r.Header.Get(echo.HeaderAuthorization)
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
