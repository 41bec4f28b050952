package service

import (
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
)

// Phase is the derived scanner state of an event.  It is never stored.
type Phase string

const (
	PhaseClosed   Phase = "closed"
	PhaseUpcoming Phase = "upcoming"
	PhaseOngoing  Phase = "ongoing"
)

// PhaseOf classifies ev at now.  An inactive event, or one whose end has
// passed, is closed.  Before its start it is upcoming.  After the start it
// is ongoing only for the rest of the start's calendar day in loc.
func PhaseOf(ev model.Event, now time.Time, loc *time.Location) Phase {
	if !ev.IsActive {
		return PhaseClosed
	}
	if ev.EndsAt != nil && now.After(*ev.EndsAt) {
		return PhaseClosed
	}
	if now.Before(ev.StartsAt) {
		return PhaseUpcoming
	}
	if sameDay(now.In(loc), ev.StartsAt.In(loc)) {
		return PhaseOngoing
	}
	return PhaseClosed
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// EventPhase is an event annotated with its phase for the scanner.
type EventPhase struct {
	model.Event
	Phase Phase `json:"phase"`
}

// DefaultEvent picks the scanner's preselected event: the first ongoing
// one, else the first upcoming one, else nil.  events are expected in
// start order.
func DefaultEvent(events []EventPhase) *EventPhase {
	for i := range events {
		if events[i].Phase == PhaseOngoing {
			return &events[i]
		}
	}
	for i := range events {
		if events[i].Phase == PhaseUpcoming {
			return &events[i]
		}
	}
	return nil
}
