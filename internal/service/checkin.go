package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/repository"
	"github.com/iliyamo/conference-checkin/internal/utils"
)

// Verifier resolves scanned codes and records attendance.
type Verifier struct {
	participants ParticipantStore
	events       EventStore
	attendance   AttendanceStore
	sealer       *utils.CredentialSealer
	prefix       string
	loc          *time.Location
	now          func() time.Time
}

// NewVerifier wires a Verifier.  prefix is the display id prefix used to
// recognise typed-in ids and loc the venue timezone used for event phases.
func NewVerifier(p ParticipantStore, e EventStore, a AttendanceStore, sealer *utils.CredentialSealer,
	prefix string, loc *time.Location) *Verifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Verifier{participants: p, events: e, attendance: a, sealer: sealer,
		prefix: strings.ToUpper(prefix), loc: loc, now: time.Now}
}

// ParticipantSummary is what the scanner screen shows about a participant.
type ParticipantSummary struct {
	ID              uint64  `json:"id"`
	DisplayID       string  `json:"display_id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Organization    string  `json:"organization"`
	Country         *string `json:"country,omitempty"`
	ParticipantType *string `json:"participant_type,omitempty"`
	Verified        bool    `json:"verified"`
}

func summarize(p *model.Participant) *ParticipantSummary {
	return &ParticipantSummary{
		ID:              p.ID,
		DisplayID:       p.DisplayID,
		Name:            p.Name,
		Email:           p.Email,
		Organization:    p.Organization,
		Country:         p.Country,
		ParticipantType: p.ParticipantType,
		Verified:        p.Verified(),
	}
}

// ScanResult is returned for every successful scan, first or repeated.
type ScanResult struct {
	OK               bool                `json:"ok"`
	Message          string              `json:"message"`
	Participant      *ParticipantSummary `json:"participant,omitempty"`
	RegisteredEvents []model.Event       `json:"registered_events,omitempty"`
	CheckedInEvent   *model.Event        `json:"checked_in_event,omitempty"`
	AlreadyCheckedIn bool                `json:"already_checked_in"`
	ScannedAt        *time.Time          `json:"scanned_at,omitempty"`
}

// Scan checks code in to eventID.  Failures are *Error values with kind
// not_found or ineligible and a message the scanner shows verbatim.  A
// repeat scan succeeds with AlreadyCheckedIn set and the original time.
func (v *Verifier) Scan(ctx context.Context, code string, eventID uint64) (*ScanResult, error) {
	ev, err := v.events.GetByID(ctx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, notFound(MsgEventNotFound)
	}
	if err != nil {
		return nil, err
	}

	p, err := v.resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ineligible(MsgInactive)
	}
	joined, err := v.events.HasJoined(ctx, p.ID, ev.ID)
	if err != nil {
		return nil, err
	}
	if !joined {
		return nil, ineligible(MsgNotJoined)
	}

	rec, created, err := v.attendance.Record(ctx, p.ID, ev.ID, v.now())
	if err != nil {
		return nil, err
	}
	events, err := v.events.ListJoined(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	res := &ScanResult{
		OK:               true,
		Message:          MsgAttendanceOK,
		Participant:      summarize(p),
		RegisteredEvents: events,
		CheckedInEvent:   ev,
		AlreadyCheckedIn: !created,
		ScannedAt:        rec.ScannedAt,
	}
	if !created {
		res.Message = MsgAlreadyCheckedIn
	}
	return res, nil
}

// resolve tries the code as a display id, then as a sealed credential
// payload, then as a raw verification token.  Typed display ids are
// matched case-insensitively.
func (v *Verifier) resolve(ctx context.Context, code string) (*model.Participant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, notFound(MsgCodeNotFound)
	}
	if utils.LooksLikeDisplayID(code, v.prefix) {
		p, err := v.participants.GetByDisplayID(ctx, strings.ToUpper(code))
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrParticipantNotFound) {
			return nil, err
		}
	}

	token := code
	if raw, err := v.sealer.Open(code); err == nil {
		token = raw
	}
	p, err := v.participants.GetByToken(ctx, token)
	if errors.Is(err, repository.ErrParticipantNotFound) {
		return nil, notFound(MsgCodeNotFound)
	}
	return p, err
}

// ScannerEvents lists all events with their phase and the default
// selection for the scanner screen.
func (v *Verifier) ScannerEvents(ctx context.Context) ([]EventPhase, *EventPhase, error) {
	events, err := v.events.List(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	now := v.now()
	out := make([]EventPhase, len(events))
	for i, ev := range events {
		out[i] = EventPhase{Event: ev, Phase: PhaseOf(ev, now, v.loc)}
	}
	return out, DefaultEvent(out), nil
}

// AttendanceReport summarises check-ins for one event.
type AttendanceReport struct {
	Event     model.Event           `json:"event"`
	Phase     Phase                 `json:"phase"`
	Joined    int                   `json:"joined"`
	CheckedIn int                   `json:"checked_in"`
	Rows      []model.AttendanceRow `json:"rows"`
}

// EventAttendance builds the attendance report for eventID.
func (v *Verifier) EventAttendance(ctx context.Context, eventID uint64) (*AttendanceReport, error) {
	ev, err := v.events.GetByID(ctx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, notFound(MsgEventNotFound)
	}
	if err != nil {
		return nil, err
	}
	joined, err := v.events.CountJoined(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rows, err := v.attendance.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &AttendanceReport{
		Event:     *ev,
		Phase:     PhaseOf(*ev, v.now(), v.loc),
		Joined:    joined,
		CheckedIn: len(rows),
		Rows:      rows,
	}, nil
}
