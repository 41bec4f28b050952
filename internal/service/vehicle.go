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
)

// VehicleInput registers a vehicle.  A nil Capacity leaves it uncapped.
type VehicleInput struct {
	Label    string  `json:"label" validate:"required,max=64"`
	Capacity *uint32 `json:"capacity" validate:"omitempty,gte=1"`
}

// VehicleResult reports what AssignVehicle did.
type VehicleResult struct {
	Vehicle         model.Vehicle             `json:"vehicle"`
	Assigned        []model.VehicleAssignment `json:"assigned"`
	AlreadyAssigned []uint64                  `json:"already_assigned"`
}

// Transport places participants in vehicles and tracks pickups.
type Transport struct {
	store        VehicleStore
	participants ParticipantStore
	notifier     Notifier
	now          func() time.Time
}

// NewTransport wires the vehicle side of the assignment engine.
func NewTransport(store VehicleStore, p ParticipantStore, n Notifier) *Transport {
	return &Transport{store: store, participants: p, notifier: n, now: time.Now}
}

// CreateVehicle registers a vehicle with a unique label.
func (t *Transport) CreateVehicle(ctx context.Context, in VehicleInput) (*model.Vehicle, error) {
	in.Label = strings.TrimSpace(in.Label)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	v := &model.Vehicle{Label: in.Label, Capacity: in.Capacity}
	if err := t.store.CreateVehicle(ctx, v); err != nil {
		return nil, vehicleErr(err)
	}
	return v, nil
}

// ListVehicles returns every vehicle with its occupancy.
func (t *Transport) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	return t.store.ListVehicles(ctx)
}

// VehicleAssignments lists a vehicle's riders.
func (t *Transport) VehicleAssignments(ctx context.Context, vehicleID uint64) ([]model.VehicleAssignment, error) {
	if _, err := t.store.GetVehicle(ctx, vehicleID); err != nil {
		return nil, vehicleErr(err)
	}
	return t.store.VehicleAssignments(ctx, vehicleID)
}

// AssignVehicle creates a pending assignment per participant.  Riders
// already in the vehicle are skipped.  When the vehicle has a capacity the
// batch is all-or-nothing like seating.
func (t *Transport) AssignVehicle(ctx context.Context, vehicleID uint64, participantIDs []uint64, pickup model.Pickup) (*VehicleResult, error) {
	ids := dedupe(participantIDs)
	if len(ids) == 0 {
		return nil, invalid("participant_ids", "Select at least one participant.")
	}
	if pickup.PickupAt != nil && pickup.DropoffAt != nil && pickup.DropoffAt.Before(*pickup.PickupAt) {
		return nil, invalid("dropoff_at", "The dropoff time must be after the pickup time.")
	}
	found, err := loadParticipants(ctx, t.participants, ids)
	if err != nil {
		return nil, err
	}

	res := &VehicleResult{}
	for attempt := 1; ; attempt++ {
		err = t.store.InTx(ctx, func(tx repository.VehicleTx) error {
			return t.assignLocked(ctx, tx, vehicleID, ids, pickup, res)
		})
		if errors.Is(err, repository.ErrDuplicate) && attempt < assignAttempts {
			continue
		}
		break
	}
	if err != nil {
		return nil, vehicleErr(err)
	}

	msgs := make([]any, 0, len(res.Assigned))
	for _, a := range res.Assigned {
		p := found[a.ParticipantID]
		msgs = append(msgs, queue.AssignmentCreatedEvent{
			Kind:           queue.AssignmentVehicle,
			ParticipantID:  p.ID,
			Name:           p.Name,
			Email:          p.Email,
			Phone:          deref(p.Phone),
			VehicleLabel:   res.Vehicle.Label,
			PickupLocation: deref(a.PickupLocation),
			PickupAt:       a.PickupAt,
			AssignedAt:     t.now().UTC(),
		})
	}
	notifyAsync(t.notifier, queue.QueueAssignmentCreated, msgs...)
	return res, nil
}

func (t *Transport) assignLocked(ctx context.Context, tx repository.VehicleTx, vehicleID uint64, ids []uint64, pickup model.Pickup, res *VehicleResult) error {
	res.Assigned = []model.VehicleAssignment{}
	res.AlreadyAssigned = []uint64{}

	v, err := tx.LockVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	existing, err := tx.AssignedParticipants(ctx, vehicleID, ids)
	if err != nil {
		return err
	}
	rows := make([]model.VehicleAssignment, 0, len(ids))
	for _, id := range ids {
		if existing[id] {
			res.AlreadyAssigned = append(res.AlreadyAssigned, id)
			continue
		}
		rows = append(rows, model.VehicleAssignment{
			VehicleID:     vehicleID,
			ParticipantID: id,
			Status:        model.VehiclePending,
			Pickup:        pickup,
		})
	}
	if v.Capacity != nil {
		free := 0
		if *v.Capacity > v.Occupied {
			free = int(*v.Capacity - v.Occupied)
		}
		if len(rows) > free {
			return capacityExceeded("participant_ids", MsgNotEnoughVehicle)
		}
	}
	if err := tx.InsertAssignments(ctx, rows); err != nil {
		return err
	}
	v.Occupied += uint32(len(rows))
	res.Vehicle = *v
	res.Assigned = rows
	return nil
}

// AdvanceVehicleStatus moves an assignment one step along
// pending -> picked_up -> dropped_off.  Repeating the current status is a
// no-op; skipping or going back is rejected.
func (t *Transport) AdvanceVehicleStatus(ctx context.Context, assignmentID uint64, status string) (*model.VehicleAssignment, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !model.ValidVehicleStatus(status) {
		return nil, invalid("status", "The status must be one of pending, picked_up, dropped_off.")
	}
	a, err := t.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, vehicleErr(err)
	}
	if a.Status == status {
		return a, nil
	}
	if !model.NextVehicleStatus(a.Status, status) {
		return nil, invalid("status", fmt.Sprintf("Cannot change status from %s to %s.", a.Status, status))
	}
	at := t.now().UTC().Truncate(time.Second)
	if err := t.store.UpdateStatus(ctx, assignmentID, a.Status, status, at); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Someone else moved it first; report the state we lost to.
			cur, gerr := t.store.GetAssignment(ctx, assignmentID)
			if gerr == nil && cur.Status == status {
				return cur, nil
			}
			return nil, invalid("status", "The status was changed by someone else.")
		}
		return nil, err
	}
	a.Status = status
	a.StatusUpdatedAt = &at
	return a, nil
}

func vehicleErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrVehicleNotFound):
		return notFound("Vehicle not found")
	case errors.Is(err, repository.ErrAssignmentNotFound):
		return notFound("Vehicle assignment not found")
	case errors.Is(err, repository.ErrVehicleLabelTaken):
		return invalid("label", "The label has already been taken.")
	case errors.Is(err, repository.ErrParticipantNotFound):
		return invalid("participant_ids", "Unknown participant.")
	case errors.Is(err, repository.ErrDuplicate):
		return conflict(MsgAssignConflict)
	}
	return err
}
