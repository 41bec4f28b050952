package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/queue"
	"github.com/iliyamo/conference-checkin/internal/repository"
)

// assignAttempts bounds the retries after a participant was seated by a
// concurrent assignment between our pre-check and our insert.
const assignAttempts = 3

// Eligibility decides whether a participant may be placed at all.
type Eligibility func(p model.Participant) bool

// ExcludeTypes returns an Eligibility rejecting participants whose type
// matches one of types, case-insensitively.  Unclassified participants
// are always eligible.
func ExcludeTypes(types []string) Eligibility {
	excluded := make(map[string]bool, len(types))
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			excluded[t] = true
		}
	}
	return func(p model.Participant) bool {
		return !excluded[strings.ToLower(p.TypeName())]
	}
}

// TableInput creates or updates a seating table.
type TableInput struct {
	TableNumber uint32 `json:"table_number" validate:"required,gte=1"`
	Capacity    uint32 `json:"capacity" validate:"required,gte=1"`
}

// SeatResult reports what AssignSeats did.
type SeatResult struct {
	Table         model.SeatingTable     `json:"table"`
	Assigned      []model.SeatAssignment `json:"assigned"`
	AlreadySeated []uint64               `json:"already_seated"`
	Ineligible    []uint64               `json:"ineligible"`
}

// Seating places participants at event tables.
type Seating struct {
	store        SeatingStore
	participants ParticipantStore
	events       EventStore
	notifier     Notifier
	eligible     Eligibility
	now          func() time.Time
}

// NewSeating wires the seating engine.  eligible is the default predicate
// used when AssignSeats is called without one.
func NewSeating(store SeatingStore, p ParticipantStore, e EventStore, n Notifier, eligible Eligibility) *Seating {
	if eligible == nil {
		eligible = func(model.Participant) bool { return true }
	}
	return &Seating{store: store, participants: p, events: e, notifier: n, eligible: eligible, now: time.Now}
}

// CreateTable adds a table to an event.
func (s *Seating) CreateTable(ctx context.Context, eventID uint64, in TableInput) (*model.SeatingTable, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, notFound(MsgEventNotFound)
		}
		return nil, err
	}
	t := &model.SeatingTable{EventID: eventID, TableNumber: in.TableNumber, Capacity: in.Capacity}
	if err := s.store.CreateTable(ctx, t); err != nil {
		return nil, tableErr(err)
	}
	return t, nil
}

// UpdateTable changes a table's number and capacity.  Capacity may not
// drop below the seats already assigned.
func (s *Seating) UpdateTable(ctx context.Context, tableID uint64, in TableInput) (*model.SeatingTable, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	var out *model.SeatingTable
	err := s.store.InTx(ctx, func(tx repository.SeatingTx) error {
		t, err := tx.LockTable(ctx, tableID)
		if err != nil {
			return err
		}
		if in.Capacity < t.Occupied {
			return invalid("capacity", fmt.Sprintf(
				"The capacity cannot be lower than the %d seats already assigned.", t.Occupied))
		}
		t.TableNumber, t.Capacity = in.TableNumber, in.Capacity
		if err := tx.UpdateTable(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, tableErr(err)
	}
	return out, nil
}

// ListTables returns an event's tables with occupancy.
func (s *Seating) ListTables(ctx context.Context, eventID uint64) ([]model.SeatingTable, error) {
	return s.store.ListTables(ctx, eventID)
}

// TableAssignments lists the seats taken at a table.
func (s *Seating) TableAssignments(ctx context.Context, tableID uint64) ([]model.SeatAssignment, error) {
	if _, err := s.store.GetTable(ctx, tableID); err != nil {
		return nil, tableErr(err)
	}
	return s.store.TableAssignments(ctx, tableID)
}

// Unseat frees the participant's seat.
func (s *Seating) Unseat(ctx context.Context, participantID uint64) error {
	ok, err := s.store.Unseat(ctx, participantID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("Participant has no seat")
	}
	return nil
}

// AssignSeats seats participantIDs at tableID.  Ids are de-duplicated,
// participants failing eligible are reported and skipped, and those
// already seated anywhere are skipped silently.  If the rest does not fit
// in the free seats nothing is written and a capacity_exceeded *Error is
// returned.  A nil eligible uses the engine's default predicate.
func (s *Seating) AssignSeats(ctx context.Context, tableID uint64, participantIDs []uint64, eligible Eligibility) (*SeatResult, error) {
	if eligible == nil {
		eligible = s.eligible
	}
	ids := dedupe(participantIDs)
	if len(ids) == 0 {
		return nil, invalid("participant_ids", "Select at least one participant.")
	}
	found, err := loadParticipants(ctx, s.participants, ids)
	if err != nil {
		return nil, err
	}

	res := &SeatResult{Assigned: []model.SeatAssignment{}, AlreadySeated: []uint64{}, Ineligible: []uint64{}}
	candidates := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if eligible(found[id]) {
			candidates = append(candidates, id)
		} else {
			res.Ineligible = append(res.Ineligible, id)
		}
	}

	for attempt := 1; ; attempt++ {
		err = s.store.InTx(ctx, func(tx repository.SeatingTx) error {
			return s.assignLocked(ctx, tx, tableID, candidates, res)
		})
		retry := errors.Is(err, repository.ErrAlreadySeated) || errors.Is(err, repository.ErrConflict)
		if retry && attempt < assignAttempts {
			continue
		}
		break
	}
	if err != nil {
		return nil, tableErr(err)
	}

	msgs := make([]any, 0, len(res.Assigned))
	for _, a := range res.Assigned {
		p := found[a.ParticipantID]
		msgs = append(msgs, queue.AssignmentCreatedEvent{
			Kind:          queue.AssignmentSeat,
			ParticipantID: p.ID,
			Name:          p.Name,
			Email:         p.Email,
			Phone:         deref(p.Phone),
			TableNumber:   res.Table.TableNumber,
			SeatNumber:    a.SeatNumber,
			AssignedAt:    a.AssignedAt,
		})
	}
	notifyAsync(s.notifier, queue.QueueAssignmentCreated, msgs...)
	return res, nil
}

// assignLocked runs with the table row locked.  It resets the parts of res
// it owns so a retried attempt starts clean.
func (s *Seating) assignLocked(ctx context.Context, tx repository.SeatingTx, tableID uint64, candidates []uint64, res *SeatResult) error {
	res.Assigned = res.Assigned[:0]
	res.AlreadySeated = res.AlreadySeated[:0]

	t, err := tx.LockTable(ctx, tableID)
	if err != nil {
		return err
	}
	seated, err := tx.SeatedParticipants(ctx, candidates)
	if err != nil {
		return err
	}
	remaining := make([]uint64, 0, len(candidates))
	for _, id := range candidates {
		if seated[id] {
			res.AlreadySeated = append(res.AlreadySeated, id)
		} else {
			remaining = append(remaining, id)
		}
	}
	if uint64(len(remaining)) > uint64(t.Available()) {
		return capacityExceeded("participant_ids", MsgNotEnoughSeats)
	}
	if len(remaining) == 0 {
		res.Table = *t
		return nil
	}

	top, err := tx.MaxSeatNumber(ctx, tableID)
	if err != nil {
		return err
	}
	at := s.now().UTC().Truncate(time.Second)
	rows := make([]model.SeatAssignment, len(remaining))
	for i, id := range remaining {
		rows[i] = model.SeatAssignment{TableID: tableID, ParticipantID: id, SeatNumber: top + uint32(i) + 1, AssignedAt: at}
	}
	if err := tx.InsertAssignments(ctx, rows); err != nil {
		return err
	}
	t.Occupied += uint32(len(rows))
	res.Table = *t
	res.Assigned = append(res.Assigned, rows...)
	return nil
}

// loadParticipants fetches ids and rejects unknown ones as a validation
// error naming them.
func loadParticipants(ctx context.Context, store ParticipantStore, ids []uint64) (map[uint64]model.Participant, error) {
	list, err := store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[uint64]model.Participant, len(list))
	for _, p := range list {
		found[p.ID] = p
	}
	var missing []uint64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		parts := make([]string, len(missing))
		for i, id := range missing {
			parts[i] = strconv.FormatUint(id, 10)
		}
		return nil, invalid("participant_ids", "Unknown participant: "+strings.Join(parts, ", "))
	}
	return found, nil
}

func tableErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrTableNotFound):
		return notFound("Seating table not found")
	case errors.Is(err, repository.ErrEventNotFound):
		return notFound(MsgEventNotFound)
	case errors.Is(err, repository.ErrTableNumberTaken):
		return invalid("table_number", "The table number has already been taken.")
	case errors.Is(err, repository.ErrAlreadySeated), errors.Is(err, repository.ErrConflict):
		return conflict(MsgAssignConflict)
	}
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
