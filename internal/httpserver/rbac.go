package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/valkirev/auth_service/internal/middleware"
	"github.com/valkirev/auth_service/internal/models"
	"github.com/valkirev/auth_service/internal/service"
	"github.com/valkirev/auth_service/internal/tokens"
)

// RBACHTTP exposes role resolution for gateways that delegate
// authorization decisions to this service.
type RBACHTTP struct {
	Svc *service.AuthService
}

func (h *RBACHTTP) MyRole(c echo.Context) error {
	ctx := c.Request().Context()

	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	user, err := h.Svc.CurrentUser(ctx, claims)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
}

func (h *RBACHTTP) VerifyPermission(c echo.Context) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	var req struct {
		RequiredRole models.Role `json:"required_role"`
	}
	if err := c.Bind(&req); err != nil || !req.RequiredRole.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "required_role is invalid")
	}

	userID, err := tokens.ParseSubject(claims.Subject)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"allowed": claims.Role.AtLeast(req.RequiredRole),
		"user_id": userID,
		"role":    claims.Role,
	})
}
