package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	userIDKey    = "user_id"
	userIDHeader = "X-User-Id"
)

// AuthMiddleware trusts the user id forwarded by the site's login layer.
// Browsers cannot set headers on a websocket upgrade, so the userId query
// parameter is accepted as well.
// later we can expand this to a signed session
func AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := strings.TrimSpace(c.Request().Header.Get(userIDHeader))
			if userID == "" {
				userID = strings.TrimSpace(c.QueryParam("userId"))
			}
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+userIDHeader+" header")
			}

			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

func UserID(c echo.Context) string {
	userID, _ := c.Get(userIDKey).(string)
	return userID
}
