package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/conference-checkin/internal/handler"
	"github.com/iliyamo/conference-checkin/internal/middleware"
	"github.com/iliyamo/conference-checkin/internal/model"
)

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}

// RegisterAuth registers staff authentication.  Login, refresh and logout
// need no access token; /v1/me and account creation do.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleScanner))
	e.POST("/v1/admin/users", a.CreateUser,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin))
}

// RegisterPublic registers the cached public programme.
func RegisterPublic(e *echo.Echo, ev *handler.EventHandler, cache echo.MiddlewareFunc) {
	if cache == nil {
		e.GET("/v1/events", ev.List)
		return
	}
	e.GET("/v1/events", ev.List, cache)
}
