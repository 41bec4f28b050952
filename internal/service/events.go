package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/repository"
)

// EventInput creates or replaces an event.  IsActive defaults to true.
type EventInput struct {
	Title    string     `json:"title" validate:"required,max=191"`
	StartsAt time.Time  `json:"starts_at" validate:"required"`
	EndsAt   *time.Time `json:"ends_at"`
	IsActive *bool      `json:"is_active"`
}

// Programme manages events.
type Programme struct {
	events EventStore
	loc    *time.Location
	now    func() time.Time
}

// NewProgramme wires event administration.
func NewProgramme(e EventStore, loc *time.Location) *Programme {
	if loc == nil {
		loc = time.UTC
	}
	return &Programme{events: e, loc: loc, now: time.Now}
}

func (in EventInput) event() (model.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateStruct(in); err != nil {
		return model.Event{}, err
	}
	if in.EndsAt != nil && !in.EndsAt.After(in.StartsAt) {
		return model.Event{}, invalid("ends_at", "The end must be after the start.")
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return model.Event{Title: in.Title, StartsAt: in.StartsAt.UTC(), EndsAt: in.EndsAt, IsActive: active}, nil
}

// CreateEvent validates and stores a new event.
func (g *Programme) CreateEvent(ctx context.Context, in EventInput) (*model.Event, error) {
	ev, err := in.event()
	if err != nil {
		return nil, err
	}
	if err := g.events.Create(ctx, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// UpdateEvent replaces an existing event's fields.
func (g *Programme) UpdateEvent(ctx context.Context, id uint64, in EventInput) (*model.Event, error) {
	ev, err := in.event()
	if err != nil {
		return nil, err
	}
	ev.ID = id
	if err := g.events.Update(ctx, &ev); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, notFound(MsgEventNotFound)
		}
		return nil, err
	}
	return g.events.GetByID(ctx, id)
}

// PublicEvents lists active events with their current phase.
func (g *Programme) PublicEvents(ctx context.Context) ([]EventPhase, error) {
	events, err := g.events.List(ctx, true)
	if err != nil {
		return nil, err
	}
	now := g.now()
	out := make([]EventPhase, len(events))
	for i, ev := range events {
		out[i] = EventPhase{Event: ev, Phase: PhaseOf(ev, now, g.loc)}
	}
	return out, nil
}
