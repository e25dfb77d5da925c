package middleware

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/valkirev/auth_service/internal/models"
	"github.com/valkirev/auth_service/internal/tokens"
)

// ClaimsContextKey is where RequireAuth stores the decoded access claims.
const ClaimsContextKey = "auth_claims"

// RequireAuth validates the bearer access token on every request. It
// never consults the session cache: access tokens are self-certifying,
// only refresh tokens are revocation-checked.
func RequireAuth(codec *tokens.Codec) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey: ClaimsContextKey,
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return codec.DecodeAccess(auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		},
	})
}

// ClaimsFrom extracts the claims placed in context by RequireAuth.
func ClaimsFrom(c echo.Context) (*tokens.AccessClaims, bool) {
	claims, ok := c.Get(ClaimsContextKey).(*tokens.AccessClaims)
	return claims, ok
}

// RequireRole gates a route on a minimum privilege level. Runs after
// RequireAuth.
func RequireRole(min models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}
			if !claims.Role.AtLeast(min) {
				return echo.NewHTTPError(http.StatusForbidden, "not enough rights")
			}
			return next(c)
		}
	}
}
