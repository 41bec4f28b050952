package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/conference-checkin/internal/handler"
	"github.com/iliyamo/conference-checkin/internal/middleware"
	"github.com/iliyamo/conference-checkin/internal/model"
)

// RegisterParticipant registers self-registration, participant login and
// the PARTICIPANT-scoped endpoints.  limit throttles registration.
func RegisterParticipant(e *echo.Echo, p *handler.ParticipantHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	if limit != nil {
		e.POST("/v1/participants/register", p.Register, limit)
	} else {
		e.POST("/v1/participants/register", p.Register)
	}
	e.POST("/v1/participants/login", p.Login)

	auth := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleParticipant),
	}
	me := e.Group("/v1/participants/me", auth...)
	me.GET("", p.Me)
	me.PATCH("", p.UpdateMe)
	me.GET("/credential", p.Credential)
	me.GET("/events", p.MyEvents)

	e.POST("/v1/events/:id/join", p.Join, auth...)
	e.DELETE("/v1/events/:id/join", p.Leave, auth...)
}
