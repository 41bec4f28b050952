package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/queue"
	"github.com/iliyamo/conference-checkin/internal/repository"
	"github.com/iliyamo/conference-checkin/internal/utils"
)

// ErrInvalidLogin is returned by Authenticate for an unknown email or a
// wrong password; the two are deliberately indistinguishable.
var ErrInvalidLogin = errors.New("invalid credentials")

// identityAttempts bounds the display id / token re-rolls per registration.
const identityAttempts = 5

// RegisterInput is the self-registration form.
type RegisterInput struct {
	Name            string  `json:"name" validate:"required,max=191"`
	Email           string  `json:"email" validate:"required,email,max=191"`
	Organization    string  `json:"organization" validate:"required,max=191"`
	Phone           *string `json:"phone" validate:"omitempty,max=32"`
	Country         *string `json:"country" validate:"omitempty,max=64"`
	ParticipantType *string `json:"participant_type" validate:"omitempty,max=64"`
	Password        string  `json:"password" validate:"required,min=8,max=72"`
}

// ProfileInput is the editable subset of a participant.
type ProfileInput struct {
	Name            string  `json:"name" validate:"required,max=191"`
	Email           string  `json:"email" validate:"required,email,max=191"`
	Organization    string  `json:"organization" validate:"required,max=191"`
	Phone           *string `json:"phone" validate:"omitempty,max=32"`
	Country         *string `json:"country" validate:"omitempty,max=64"`
	ParticipantType *string `json:"participant_type" validate:"omitempty,max=64"`
}

func (in ProfileInput) profile() model.Profile {
	p := model.Profile{
		Name: in.Name, Email: in.Email, Organization: in.Organization,
		Phone: in.Phone, Country: in.Country, ParticipantType: in.ParticipantType,
	}
	p.Normalize()
	return p
}

// Registry creates participant identities and manages their lifecycle.
type Registry struct {
	participants ParticipantStore
	events       EventStore
	sealer       *utils.CredentialSealer
	notifier     Notifier
	prefix       string
	bcryptCost   int
	loc          *time.Location

	now      func() time.Time
	newID    func(prefix string) (string, error)
	newToken func() (string, error)
}

// NewRegistry wires a Registry.  prefix is the display id prefix (e.g.
// CONF) and loc the timezone used to decide whether an event is closed.
func NewRegistry(p ParticipantStore, e EventStore, sealer *utils.CredentialSealer, n Notifier,
	prefix string, bcryptCost int, loc *time.Location) *Registry {
	if loc == nil {
		loc = time.UTC
	}
	return &Registry{
		participants: p,
		events:       e,
		sealer:       sealer,
		notifier:     n,
		prefix:       strings.ToUpper(prefix),
		bcryptCost:   bcryptCost,
		loc:          loc,
		now:          time.Now,
		newID:        utils.NewDisplayID,
		newToken:     utils.NewVerificationToken,
	}
}

// Register validates the form, allocates a unique display id and
// verification token and stores the participant.  A registered event is
// published once the row exists.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*model.Participant, error) {
	prof := ProfileInput{
		Name: in.Name, Email: in.Email, Organization: in.Organization,
		Phone: in.Phone, Country: in.Country, ParticipantType: in.ParticipantType,
	}.profile()
	in.Name, in.Email, in.Organization = prof.Name, prof.Email, prof.Organization
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if _, err := r.participants.GetByEmail(ctx, prof.Email); err == nil {
		return nil, emailTaken()
	} else if !errors.Is(err, repository.ErrParticipantNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(in.Password, r.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p := &model.Participant{Profile: prof, PasswordHash: hash, IsActive: true}
	for attempt := 1; ; attempt++ {
		if p.DisplayID, err = r.newID(r.prefix); err != nil {
			return nil, err
		}
		if p.VerificationToken, err = r.newToken(); err != nil {
			return nil, err
		}
		err = r.participants.Create(ctx, p)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, emailTaken()
		case errors.Is(err, repository.ErrDisplayIDTaken), errors.Is(err, repository.ErrTokenTaken):
			if attempt >= identityAttempts {
				return nil, fmt.Errorf("allocate participant identity: %w", err)
			}
			continue
		default:
			return nil, err
		}
	}

	payload, err := r.sealer.Seal(p.VerificationToken)
	if err != nil {
		return nil, fmt.Errorf("seal credential: %w", err)
	}
	ev := queue.ParticipantRegisteredEvent{
		ParticipantID:     p.ID,
		DisplayID:         p.DisplayID,
		Name:              p.Name,
		Email:             p.Email,
		CredentialPayload: payload,
		RegisteredAt:      r.now().UTC(),
	}
	if p.Phone != nil {
		ev.Phone = *p.Phone
	}
	notifyAsync(r.notifier, queue.QueueParticipantRegistered, ev)
	return p, nil
}

func emailTaken() *Error {
	return invalid("email", "The email has already been taken.")
}

// Authenticate checks a participant's email and password.
func (r *Registry) Authenticate(ctx context.Context, email, password string) (*model.Participant, error) {
	p, err := r.participants.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrParticipantNotFound) {
		return nil, ErrInvalidLogin
	}
	if err != nil {
		return nil, err
	}
	if !utils.VerifyPassword(p.PasswordHash, password) {
		return nil, ErrInvalidLogin
	}
	if !p.IsActive {
		return nil, ineligible(MsgInactive)
	}
	return p, nil
}

// Get returns a participant or a not_found *Error.
func (r *Registry) Get(ctx context.Context, id uint64) (*model.Participant, error) {
	p, err := r.participants.GetByID(ctx, id)
	if errors.Is(err, repository.ErrParticipantNotFound) {
		return nil, notFound(MsgParticipantAbsent)
	}
	return p, err
}

// Credential returns a freshly sealed credential payload for the
// participant's QR code.  Every call yields a different string that opens
// to the same token.
func (r *Registry) Credential(ctx context.Context, id uint64) (string, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return r.sealer.Seal(p.VerificationToken)
}

// UpdateProfile replaces the editable profile fields.  Identity fields are
// not part of ProfileInput and cannot change.
func (r *Registry) UpdateProfile(ctx context.Context, id uint64, in ProfileInput) (*model.Participant, error) {
	prof := in.profile()
	in.Name, in.Email, in.Organization = prof.Name, prof.Email, prof.Organization
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	err := r.participants.UpdateProfile(ctx, id, prof)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return nil, emailTaken()
	case errors.Is(err, repository.ErrParticipantNotFound):
		return nil, notFound(MsgParticipantAbsent)
	case err != nil:
		return nil, err
	}
	return r.Get(ctx, id)
}

// Deactivate closes the soft gate; attendance and assignments are kept.
func (r *Registry) Deactivate(ctx context.Context, id uint64) error {
	return r.setActive(ctx, id, false)
}

// Activate reopens the gate closed by Deactivate.
func (r *Registry) Activate(ctx context.Context, id uint64) error {
	return r.setActive(ctx, id, true)
}

func (r *Registry) setActive(ctx context.Context, id uint64, active bool) error {
	err := r.participants.SetActive(ctx, id, active)
	if errors.Is(err, repository.ErrParticipantNotFound) {
		return notFound(MsgParticipantAbsent)
	}
	return err
}

// MarkVerified records that an administrator checked the participant's
// documents.  The first verification time is kept.
func (r *Registry) MarkVerified(ctx context.Context, id uint64) (*model.Participant, error) {
	err := r.participants.MarkVerified(ctx, id, r.now().UTC())
	if errors.Is(err, repository.ErrParticipantNotFound) {
		return nil, notFound(MsgParticipantAbsent)
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// JoinEvent opts the participant into an event.  Joining twice is a no-op;
// closed events and inactive participants are rejected.
func (r *Registry) JoinEvent(ctx context.Context, participantID, eventID uint64) (bool, error) {
	p, err := r.Get(ctx, participantID)
	if err != nil {
		return false, err
	}
	if !p.IsActive {
		return false, ineligible(MsgInactive)
	}
	ev, err := r.events.GetByID(ctx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return false, notFound(MsgEventNotFound)
	}
	if err != nil {
		return false, err
	}
	if PhaseOf(*ev, r.now(), r.loc) == PhaseClosed {
		return false, ineligible(MsgEventClosed)
	}
	created, err := r.events.Join(ctx, participantID, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return false, notFound(MsgEventNotFound)
	}
	return created, err
}

// LeaveEvent removes the participant's join.  Attendance already recorded
// for the event is kept.
func (r *Registry) LeaveEvent(ctx context.Context, participantID, eventID uint64) error {
	left, err := r.events.Leave(ctx, participantID, eventID)
	if err != nil {
		return err
	}
	if !left {
		return notFound(MsgNotJoined)
	}
	return nil
}

// JoinedEvents lists the participant's events sorted by start time.
func (r *Registry) JoinedEvents(ctx context.Context, participantID uint64) ([]model.Event, error) {
	return r.events.ListJoined(ctx, participantID)
}
