package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/service"
)

// EventService is implemented by *service.Programme.
type EventService interface {
	CreateEvent(ctx context.Context, in service.EventInput) (*model.Event, error)
	UpdateEvent(ctx context.Context, id uint64, in service.EventInput) (*model.Event, error)
	PublicEvents(ctx context.Context) ([]service.EventPhase, error)
}

// EventHandler serves the public programme and event administration.
type EventHandler struct {
	Programme EventService
}

func NewEventHandler(p EventService) *EventHandler { return &EventHandler{Programme: p} }

// List returns active events with their phase.  The route is cached.
func (h *EventHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	events, err := h.Programme.PublicEvents(ctx)
	if err != nil {
		return fail(c, "list events", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}

// Create adds an event.
func (h *EventHandler) Create(c echo.Context) error {
	var in service.EventInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	ev, err := h.Programme.CreateEvent(ctx, in)
	if err != nil {
		return fail(c, "create event", err)
	}
	return c.JSON(http.StatusCreated, ev)
}

// Update replaces an event.
func (h *EventHandler) Update(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "event id")
	}
	var in service.EventInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	ev, err := h.Programme.UpdateEvent(ctx, id, in)
	if err != nil {
		return fail(c, "update event", err)
	}
	return c.JSON(http.StatusOK, ev)
}
