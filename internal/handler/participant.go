package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/conference-checkin/internal/config"
	"github.com/iliyamo/conference-checkin/internal/middleware"
	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/service"
	"github.com/iliyamo/conference-checkin/internal/utils"
)

// ParticipantService is implemented by *service.Registry.
type ParticipantService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.Participant, error)
	Authenticate(ctx context.Context, email, password string) (*model.Participant, error)
	Get(ctx context.Context, id uint64) (*model.Participant, error)
	Credential(ctx context.Context, id uint64) (string, error)
	UpdateProfile(ctx context.Context, id uint64, in service.ProfileInput) (*model.Participant, error)
	JoinEvent(ctx context.Context, participantID, eventID uint64) (bool, error)
	LeaveEvent(ctx context.Context, participantID, eventID uint64) error
	JoinedEvents(ctx context.Context, participantID uint64) ([]model.Event, error)
	Deactivate(ctx context.Context, id uint64) error
	Activate(ctx context.Context, id uint64) error
	MarkVerified(ctx context.Context, id uint64) (*model.Participant, error)
}

// ParticipantHandler serves participant self-service and the registry's
// admin actions.
type ParticipantHandler struct {
	Cfg      config.Config
	Registry ParticipantService
}

func NewParticipantHandler(cfg config.Config, r ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{Cfg: cfg, Registry: r}
}

type credentialResp struct {
	DisplayID         string `json:"display_id"`
	CredentialPayload string `json:"credential_payload"`
}

type registerResp struct {
	Participant *model.Participant `json:"participant"`
	credentialResp
}

// Register creates a participant and returns its credential payload.
func (h *ParticipantHandler) Register(c echo.Context) error {
	var in service.RegisterInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	p, err := h.Registry.Register(ctx, in)
	if err != nil {
		return fail(c, "register", err)
	}
	payload, err := h.Registry.Credential(ctx, p.ID)
	if err != nil {
		return fail(c, "credential", err)
	}
	return c.JSON(http.StatusCreated, registerResp{
		Participant:    p,
		credentialResp: credentialResp{DisplayID: p.DisplayID, CredentialPayload: payload},
	})
}

// Login authenticates a participant and returns a PARTICIPANT access
// token.  Participants get no refresh token.
func (h *ParticipantHandler) Login(c echo.Context) error {
	var req loginReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	p, err := h.Registry.Authenticate(ctx, req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidLogin) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return fail(c, "login", err)
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, strconv.FormatUint(p.ID, 10), model.RoleParticipant, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, "issue access", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"participant": p,
		"access":      tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// Me returns the caller's profile.
func (h *ParticipantHandler) Me(c echo.Context) error {
	id, ok := middleware.SubjectID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Registry.Get(ctx, id)
	if err != nil {
		return fail(c, "load participant", err)
	}
	return c.JSON(http.StatusOK, p)
}

// UpdateMe replaces the caller's editable profile fields.
func (h *ParticipantHandler) UpdateMe(c echo.Context) error {
	id, ok := middleware.SubjectID(c)
	if !ok {
		return unauthorized(c)
	}
	var in service.ProfileInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Registry.UpdateProfile(ctx, id, in)
	if err != nil {
		return fail(c, "update profile", err)
	}
	return c.JSON(http.StatusOK, p)
}

// Credential returns a fresh credential payload for the caller's QR code.
func (h *ParticipantHandler) Credential(c echo.Context) error {
	id, ok := middleware.SubjectID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Registry.Get(ctx, id)
	if err != nil {
		return fail(c, "load participant", err)
	}
	payload, err := h.Registry.Credential(ctx, id)
	if err != nil {
		return fail(c, "credential", err)
	}
	return c.JSON(http.StatusOK, credentialResp{DisplayID: p.DisplayID, CredentialPayload: payload})
}

// MyEvents lists the events the caller joined.
func (h *ParticipantHandler) MyEvents(c echo.Context) error {
	id, ok := middleware.SubjectID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	events, err := h.Registry.JoinedEvents(ctx, id)
	if err != nil {
		return fail(c, "list events", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}

// Join opts the caller into the event in the path.
func (h *ParticipantHandler) Join(c echo.Context) error {
	id, ok := middleware.SubjectID(c)
	if !ok {
		return unauthorized(c)
	}
	eventID, ok := paramID(c, "id")
	if !ok {
		return badID(c, "event id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	created, err := h.Registry.JoinEvent(ctx, id, eventID)
	if err != nil {
		return fail(c, "join event", err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{"event_id": eventID, "joined": true})
}

// Leave removes the caller's join.
func (h *ParticipantHandler) Leave(c echo.Context) error {
	id, ok := middleware.SubjectID(c)
	if !ok {
		return unauthorized(c)
	}
	eventID, ok := paramID(c, "id")
	if !ok {
		return badID(c, "event id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Registry.LeaveEvent(ctx, id, eventID); err != nil {
		return fail(c, "leave event", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- admin -----

// Show returns any participant to an administrator.
func (h *ParticipantHandler) Show(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "participant id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Registry.Get(ctx, id)
	if err != nil {
		return fail(c, "load participant", err)
	}
	return c.JSON(http.StatusOK, p)
}

// Deactivate closes the participant's check-in gate.
func (h *ParticipantHandler) Deactivate(c echo.Context) error {
	return h.setActive(c, false)
}

// Activate reopens the participant's check-in gate.
func (h *ParticipantHandler) Activate(c echo.Context) error {
	return h.setActive(c, true)
}

func (h *ParticipantHandler) setActive(c echo.Context, active bool) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "participant id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	var err error
	if active {
		err = h.Registry.Activate(ctx, id)
	} else {
		err = h.Registry.Deactivate(ctx, id)
	}
	if err != nil {
		return fail(c, "update participant", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "is_active": active})
}

// Verify marks the participant as verified by staff.
func (h *ParticipantHandler) Verify(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c, "participant id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Registry.MarkVerified(ctx, id)
	if err != nil {
		return fail(c, "verify participant", err)
	}
	return c.JSON(http.StatusOK, p)
}
