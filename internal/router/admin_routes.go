package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/conference-checkin/internal/handler"
	"github.com/iliyamo/conference-checkin/internal/middleware"
	"github.com/iliyamo/conference-checkin/internal/model"
)

// Admin bundles the handlers mounted under /v1/admin.
type Admin struct {
	Events       *handler.EventHandler
	Participants *handler.ParticipantHandler
	Checkin      *handler.CheckinHandler
	Seating      *handler.SeatingHandler
	Vehicles     *handler.VehicleHandler
}

// RegisterAdmin registers ADMIN endpoints.  Pickup status updates are also
// open to scanner operators at the vehicle door.
func RegisterAdmin(e *echo.Echo, a Admin, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret))
	admin := middleware.RequireRole(model.RoleAdmin)

	// ---- Events ----
	g.POST("/events", a.Events.Create, admin)
	g.PUT("/events/:id", a.Events.Update, admin)
	g.GET("/events/:id/attendance", a.Checkin.Attendance, admin)

	// ---- Participants ----
	g.GET("/participants/:id", a.Participants.Show, admin)
	g.POST("/participants/:id/deactivate", a.Participants.Deactivate, admin)
	g.POST("/participants/:id/activate", a.Participants.Activate, admin)
	g.POST("/participants/:id/verify", a.Participants.Verify, admin)
	g.DELETE("/participants/:id/seat", a.Seating.Unseat, admin)

	// ---- Seating ----
	g.POST("/events/:id/tables", a.Seating.CreateTable, admin)
	g.GET("/events/:id/tables", a.Seating.ListTables, admin)
	g.PUT("/tables/:id", a.Seating.UpdateTable, admin)
	g.POST("/tables/:id/assign", a.Seating.Assign, admin)
	g.GET("/tables/:id/assignments", a.Seating.Assignments, admin)

	// ---- Vehicles ----
	g.POST("/vehicles", a.Vehicles.Create, admin)
	g.GET("/vehicles", a.Vehicles.List, admin)
	g.GET("/vehicles/:id/assignments", a.Vehicles.Assignments, admin)
	g.POST("/vehicles/:id/assign", a.Vehicles.Assign, admin)
	g.PATCH("/vehicle-assignments/:id/status", a.Vehicles.Status,
		middleware.RequireRole(model.RoleAdmin, model.RoleScanner))
}

// RegisterCheckin registers the scanner desk.  limit throttles scans.
func RegisterCheckin(e *echo.Echo, c *handler.CheckinHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/checkin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleScanner))
	g.GET("/events", c.Events)
	if limit != nil {
		g.POST("/scan", c.Scan, limit)
	} else {
		g.POST("/scan", c.Scan)
	}
}
