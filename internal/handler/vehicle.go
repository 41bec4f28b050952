package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/service"
)

// VehicleService is implemented by *service.Transport.
type VehicleService interface {
	CreateVehicle(ctx context.Context, in service.VehicleInput) (*model.Vehicle, error)
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	VehicleAssignments(ctx context.Context, vehicleID uint64) ([]model.VehicleAssignment, error)
	AssignVehicle(ctx context.Context, vehicleID uint64, participantIDs []uint64, pickup model.Pickup) (*service.VehicleResult, error)
	AdvanceVehicleStatus(ctx context.Context, assignmentID uint64, status string) (*model.VehicleAssignment, error)
}

// VehicleHandler serves vehicles, rider assignment and pickup status.
type VehicleHandler struct {
	Transport VehicleService
}

func NewVehicleHandler(t VehicleService) *VehicleHandler { return &VehicleHandler{Transport: t} }

type vehicleAssignReq struct {
	ParticipantIDs []uint64 `json:"participant_ids" validate:"required,min=1"`
	model.Pickup
}

type statusReq struct {
	Status string `json:"status" validate:"required"`
}

// Create registers a vehicle.
func (h *VehicleHandler) Create(c echo.Context) error {
	var in service.VehicleInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := h.Transport.CreateVehicle(ctx, in)
	if err != nil {
		return fail(c, "create vehicle", err)
	}
	return c.JSON(http.StatusCreated, v)
}

// List returns all vehicles with occupancy.
func (h *VehicleHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	vehicles, err := h.Transport.ListVehicles(ctx)
	if err != nil {
		return fail(c, "list vehicles", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"vehicles": vehicles})
}

// Assignments lists a vehicle's riders.
func (h *VehicleHandler) Assignments(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "vehicle id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	riders, err := h.Transport.VehicleAssignments(ctx, id)
	if err != nil {
		return fail(c, "list riders", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"assignments": riders})
}

// Assign puts a batch of participants in the vehicle in the path.
func (h *VehicleHandler) Assign(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "vehicle id")
	}
	var req vehicleAssignReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	res, err := h.Transport.AssignVehicle(ctx, id, req.ParticipantIDs, req.Pickup)
	if err != nil {
		return fail(c, "assign vehicle", err)
	}
	return c.JSON(http.StatusOK, res)
}

// Status advances a rider's pickup status.
func (h *VehicleHandler) Status(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "assignment id")
	}
	var req statusReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	a, err := h.Transport.AdvanceVehicleStatus(ctx, id, req.Status)
	if err != nil {
		return fail(c, "update status", err)
	}
	return c.JSON(http.StatusOK, a)
}
