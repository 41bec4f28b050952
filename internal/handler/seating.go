package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/service"
)

// SeatingService is implemented by *service.Seating.
type SeatingService interface {
	CreateTable(ctx context.Context, eventID uint64, in service.TableInput) (*model.SeatingTable, error)
	UpdateTable(ctx context.Context, tableID uint64, in service.TableInput) (*model.SeatingTable, error)
	ListTables(ctx context.Context, eventID uint64) ([]model.SeatingTable, error)
	TableAssignments(ctx context.Context, tableID uint64) ([]model.SeatAssignment, error)
	AssignSeats(ctx context.Context, tableID uint64, participantIDs []uint64, eligible service.Eligibility) (*service.SeatResult, error)
	Unseat(ctx context.Context, participantID uint64) error
}

// SeatingHandler serves table administration and seat assignment.
type SeatingHandler struct {
	Seating SeatingService
}

func NewSeatingHandler(s SeatingService) *SeatingHandler { return &SeatingHandler{Seating: s} }

type assignReq struct {
	ParticipantIDs []uint64 `json:"participant_ids" validate:"required,min=1"`
}

// CreateTable adds a table to the event in the path.
func (h *SeatingHandler) CreateTable(c echo.Context) error {
	eventID, ok := paramID(c, "id")
	if !ok {
		return badID(c, "event id")
	}
	var in service.TableInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	t, err := h.Seating.CreateTable(ctx, eventID, in)
	if err != nil {
		return fail(c, "create table", err)
	}
	return c.JSON(http.StatusCreated, t)
}

// ListTables lists an event's tables with occupancy.
func (h *SeatingHandler) ListTables(c echo.Context) error {
	eventID, ok := paramID(c, "id")
	if !ok {
		return badID(c, "event id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	tables, err := h.Seating.ListTables(ctx, eventID)
	if err != nil {
		return fail(c, "list tables", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tables": tables})
}

// UpdateTable changes a table's number or capacity.
func (h *SeatingHandler) UpdateTable(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "table id")
	}
	var in service.TableInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	t, err := h.Seating.UpdateTable(ctx, id, in)
	if err != nil {
		return fail(c, "update table", err)
	}
	return c.JSON(http.StatusOK, t)
}

// Assign seats a batch of participants at the table in the path.  The
// engine's configured eligibility applies.
func (h *SeatingHandler) Assign(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "table id")
	}
	var req assignReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	res, err := h.Seating.AssignSeats(ctx, id, req.ParticipantIDs, nil)
	if err != nil {
		return fail(c, "assign seats", err)
	}
	return c.JSON(http.StatusOK, res)
}

// Assignments lists the seats taken at a table.
func (h *SeatingHandler) Assignments(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "table id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	seats, err := h.Seating.TableAssignments(ctx, id)
	if err != nil {
		return fail(c, "list assignments", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"assignments": seats})
}

// Unseat frees the seat of the participant in the path.
func (h *SeatingHandler) Unseat(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "participant id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Seating.Unseat(ctx, id); err != nil {
		return fail(c, "unseat", err)
	}
	return c.NoContent(http.StatusNoContent)
}
