package service

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/queue"
)

func capacity(n uint32) *uint32 { return &n }

func TestAssignVehicleCapped(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	ids := w.registerMany(t, 4)
	v, err := w.transport.CreateVehicle(ctx, VehicleInput{Label: " Bus A ", Capacity: capacity(3)})
	if err != nil {
		t.Fatal(err)
	}
	if v.Label != "Bus A" {
		t.Fatalf("label = %q", v.Label)
	}

	res, err := w.transport.AssignVehicle(ctx, v.ID, ids[:2], model.Pickup{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Assigned) != 2 || res.Vehicle.Occupied != 2 {
		t.Fatalf("result = %+v", res)
	}
	for _, a := range res.Assigned {
		if a.Status != model.VehiclePending {
			t.Fatalf("new assignment status = %s", a.Status)
		}
	}

	_, err = w.transport.AssignVehicle(ctx, v.ID, ids[1:], model.Pickup{})
	if se := requireKind(t, err, KindCapacity); se.Fields["participant_ids"] != MsgNotEnoughVehicle {
		t.Fatalf("fields = %v", se.Fields)
	}

	res, err = w.transport.AssignVehicle(ctx, v.ID, ids[1:3], model.Pickup{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.AlreadyAssigned) != 1 || res.AlreadyAssigned[0] != ids[1] || len(res.Assigned) != 1 {
		t.Fatalf("result = %+v", res)
	}
	riders, _ := w.transport.VehicleAssignments(ctx, v.ID)
	if len(riders) != 3 {
		t.Fatalf("riders = %d", len(riders))
	}
}

func TestAssignVehicleUncapped(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	ids := w.registerMany(t, 6)
	v, err := w.transport.CreateVehicle(ctx, VehicleInput{Label: "Van"})
	if err != nil {
		t.Fatal(err)
	}
	loc := "Hotel lobby"
	at := testNow.Add(2 * time.Hour)
	res, err := w.transport.AssignVehicle(ctx, v.ID, ids, model.Pickup{PickupLocation: &loc, PickupAt: &at})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Assigned) != 6 || *res.Assigned[0].PickupLocation != loc {
		t.Fatalf("result = %+v", res)
	}

	msgs := w.notes.waitFor(t, 12)
	var rides int
	for _, m := range msgs {
		if ev, ok := m.msg.(queue.AssignmentCreatedEvent); ok && ev.Kind == queue.AssignmentVehicle {
			if ev.VehicleLabel != "Van" || ev.PickupLocation != loc {
				t.Fatalf("unexpected message %+v", ev)
			}
			rides++
		}
	}
	if rides != 6 {
		t.Fatalf("vehicle messages = %d", rides)
	}
}

func TestAssignVehicleValidation(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	ids := w.registerMany(t, 1)
	v, _ := w.transport.CreateVehicle(ctx, VehicleInput{Label: "Van"})

	_, err := w.transport.CreateVehicle(ctx, VehicleInput{Label: "Van"})
	if se := requireKind(t, err, KindValidation); se.Fields["label"] == "" {
		t.Fatalf("fields = %v", se.Fields)
	}
	_, err = w.transport.CreateVehicle(ctx, VehicleInput{Label: "Zero", Capacity: capacity(0)})
	requireKind(t, err, KindValidation)

	pickup, dropoff := testNow.Add(time.Hour), testNow
	_, err = w.transport.AssignVehicle(ctx, v.ID, ids, model.Pickup{PickupAt: &pickup, DropoffAt: &dropoff})
	if se := requireKind(t, err, KindValidation); se.Fields["dropoff_at"] == "" {
		t.Fatalf("fields = %v", se.Fields)
	}
	_, err = w.transport.AssignVehicle(ctx, 999, ids, model.Pickup{})
	requireKind(t, err, KindNotFound)
	_, err = w.transport.VehicleAssignments(ctx, 999)
	requireKind(t, err, KindNotFound)
}

func TestAssignVehicleReturnsStoredIDs(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	ids := w.registerMany(t, 2)
	v, err := w.transport.CreateVehicle(ctx, VehicleInput{Label: "Shuttle"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := w.transport.AssignVehicle(ctx, v.ID, ids, model.Pickup{})
	if err != nil {
		t.Fatal(err)
	}
	stored, err := w.transport.VehicleAssignments(ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	byParticipant := map[uint64]uint64{}
	for _, a := range stored {
		byParticipant[a.ParticipantID] = a.ID
	}
	for _, a := range res.Assigned {
		if a.ID == 0 || a.ID != byParticipant[a.ParticipantID] {
			t.Fatalf("participant %d: returned id %d, stored id %d", a.ParticipantID, a.ID, byParticipant[a.ParticipantID])
		}
		if _, err := w.transport.AdvanceVehicleStatus(ctx, a.ID, model.VehiclePickedUp); err != nil {
			t.Fatalf("advance %d: %v", a.ID, err)
		}
	}
}

func TestAdvanceVehicleStatus(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	ids := w.registerMany(t, 1)
	v, _ := w.transport.CreateVehicle(ctx, VehicleInput{Label: "Van"})
	res, err := w.transport.AssignVehicle(ctx, v.ID, ids, model.Pickup{})
	if err != nil {
		t.Fatal(err)
	}
	id := res.Assigned[0].ID

	_, err = w.transport.AdvanceVehicleStatus(ctx, id, model.VehicleDroppedOff)
	requireKind(t, err, KindValidation)
	_, err = w.transport.AdvanceVehicleStatus(ctx, id, "boarding")
	requireKind(t, err, KindValidation)

	a, err := w.transport.AdvanceVehicleStatus(ctx, id, " PICKED_UP ")
	if err != nil || a.Status != model.VehiclePickedUp || a.StatusUpdatedAt == nil {
		t.Fatalf("picked up: %+v %v", a, err)
	}
	a, err = w.transport.AdvanceVehicleStatus(ctx, id, model.VehiclePickedUp)
	if err != nil || a.Status != model.VehiclePickedUp {
		t.Fatalf("repeat should be a no-op: %+v %v", a, err)
	}
	_, err = w.transport.AdvanceVehicleStatus(ctx, id, model.VehiclePending)
	requireKind(t, err, KindValidation)

	a, err = w.transport.AdvanceVehicleStatus(ctx, id, model.VehicleDroppedOff)
	if err != nil || a.Status != model.VehicleDroppedOff {
		t.Fatalf("dropped off: %+v %v", a, err)
	}
	_, err = w.transport.AdvanceVehicleStatus(ctx, 999, model.VehiclePickedUp)
	requireKind(t, err, KindNotFound)
}
