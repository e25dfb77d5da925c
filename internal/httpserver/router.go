package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/valkirev/auth_service/internal/middleware"
	"github.com/valkirev/auth_service/internal/models"
	"github.com/valkirev/auth_service/internal/tokens"
)

type Deps struct {
	Auth  *AuthHTTP
	Users *UsersHTTP
	RBAC  *RBACHTTP
	Codec *tokens.Codec
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	requireAuth := middleware.RequireAuth(d.Codec)

	auth := e.Group("/auth")
	auth.POST("/token", d.Auth.Token)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.Logout)
	auth.GET("/me", d.Auth.Me, requireAuth)

	users := e.Group("/users")
	users.POST("/register", d.Users.Register)
	users.PUT("/me/password", d.Users.ChangePassword, requireAuth)

	admin := users.Group("", requireAuth, middleware.RequireRole(models.RoleAdmin))
	admin.GET("", d.Users.List)
	admin.PUT("/:id/activate", d.Users.Activate)
	admin.PUT("/:id/deactivate", d.Users.Deactivate)
	admin.PUT("/:id/role", d.Users.SetRole)

	rbac := e.Group("/rbac", requireAuth)
	rbac.GET("/my-role", d.RBAC.MyRole)
	rbac.POST("/verify-permission", d.RBAC.VerifyPermission)
}
