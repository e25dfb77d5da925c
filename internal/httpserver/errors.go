package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/valkirev/auth_service/internal/service"
)

// httpError maps service sentinels onto response codes. Anything
// outside the taxonomy becomes an opaque 500.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDisabled),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrRevokedOrExpired):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidRole):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTransient):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable, retry later")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
