package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/conference-checkin/internal/service"
)

// CheckinService is implemented by *service.Verifier.
type CheckinService interface {
	Scan(ctx context.Context, code string, eventID uint64) (*service.ScanResult, error)
	ScannerEvents(ctx context.Context) ([]service.EventPhase, *service.EventPhase, error)
	EventAttendance(ctx context.Context, eventID uint64) (*service.AttendanceReport, error)
}

// CheckinHandler serves the scanner desk and attendance reports.
type CheckinHandler struct {
	Verifier CheckinService
}

func NewCheckinHandler(v CheckinService) *CheckinHandler { return &CheckinHandler{Verifier: v} }

type scanReq struct {
	Code    string `json:"code" validate:"required"`
	EventID uint64 `json:"event_id" validate:"required"`
}

// scanFailure is the envelope returned when a scan is refused.  It mirrors
// service.ScanResult so the scanner UI can branch on ok and reason.
type scanFailure struct {
	OK               bool   `json:"ok"`
	Reason           string `json:"reason"`
	Message          string `json:"message"`
	AlreadyCheckedIn bool   `json:"already_checked_in"`
}

// Scan resolves a code and records attendance.  Refusals keep the scan
// envelope with ok=false; the status is 404 for unknown codes or events
// and 422 for ineligible participants.
func (h *CheckinHandler) Scan(c echo.Context) error {
	var req scanReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	res, err := h.Verifier.Scan(ctx, req.Code, req.EventID)
	var se *service.Error
	if errors.As(err, &se) {
		return c.JSON(statusFor(se.Kind), scanFailure{Reason: string(se.Kind), Message: se.Message})
	}
	if err != nil {
		return fail(c, "scan", err)
	}
	return c.JSON(http.StatusOK, res)
}

// Events lists every event with its phase and the scanner's default pick.
func (h *CheckinHandler) Events(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	events, def, err := h.Verifier.ScannerEvents(ctx)
	if err != nil {
		return fail(c, "list events", err)
	}
	resp := echo.Map{"events": events, "default_event_id": nil}
	if def != nil {
		resp["default_event_id"] = def.ID
	}
	return c.JSON(http.StatusOK, resp)
}

// Attendance returns the attendance report of one event.
func (h *CheckinHandler) Attendance(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "event id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	report, err := h.Verifier.EventAttendance(ctx, id)
	if err != nil {
		return fail(c, "attendance", err)
	}
	return c.JSON(http.StatusOK, report)
}
