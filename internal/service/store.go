package service

import (
	"context"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/repository"
)

// The store interfaces are satisfied by the MySQL repositories in
// internal/repository.  Errors follow the repository sentinels.

type ParticipantStore interface {
	Create(ctx context.Context, p *model.Participant) error
	GetByID(ctx context.Context, id uint64) (*model.Participant, error)
	GetByDisplayID(ctx context.Context, displayID string) (*model.Participant, error)
	GetByToken(ctx context.Context, token string) (*model.Participant, error)
	GetByEmail(ctx context.Context, email string) (*model.Participant, error)
	GetMany(ctx context.Context, ids []uint64) ([]model.Participant, error)
	UpdateProfile(ctx context.Context, id uint64, p model.Profile) error
	SetActive(ctx context.Context, id uint64, active bool) error
	MarkVerified(ctx context.Context, id uint64, at time.Time) error
}

type EventStore interface {
	Create(ctx context.Context, ev *model.Event) error
	Update(ctx context.Context, ev *model.Event) error
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
	List(ctx context.Context, activeOnly bool) ([]model.Event, error)
	Join(ctx context.Context, participantID, eventID uint64) (bool, error)
	Leave(ctx context.Context, participantID, eventID uint64) (bool, error)
	HasJoined(ctx context.Context, participantID, eventID uint64) (bool, error)
	ListJoined(ctx context.Context, participantID uint64) ([]model.Event, error)
	CountJoined(ctx context.Context, eventID uint64) (int, error)
}

type AttendanceStore interface {
	Record(ctx context.Context, participantID, eventID uint64, now time.Time) (*model.AttendanceRecord, bool, error)
	ListByEvent(ctx context.Context, eventID uint64) ([]model.AttendanceRow, error)
}

type SeatingStore interface {
	InTx(ctx context.Context, fn func(repository.SeatingTx) error) error
	CreateTable(ctx context.Context, t *model.SeatingTable) error
	GetTable(ctx context.Context, id uint64) (*model.SeatingTable, error)
	ListTables(ctx context.Context, eventID uint64) ([]model.SeatingTable, error)
	TableAssignments(ctx context.Context, tableID uint64) ([]model.SeatAssignment, error)
	Unseat(ctx context.Context, participantID uint64) (bool, error)
}

type VehicleStore interface {
	InTx(ctx context.Context, fn func(repository.VehicleTx) error) error
	CreateVehicle(ctx context.Context, v *model.Vehicle) error
	GetVehicle(ctx context.Context, id uint64) (*model.Vehicle, error)
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	VehicleAssignments(ctx context.Context, vehicleID uint64) ([]model.VehicleAssignment, error)
	GetAssignment(ctx context.Context, id uint64) (*model.VehicleAssignment, error)
	UpdateStatus(ctx context.Context, id uint64, from, to string, at time.Time) error
}

var (
	_ ParticipantStore = (*repository.ParticipantRepo)(nil)
	_ EventStore       = (*repository.EventRepo)(nil)
	_ AttendanceStore  = (*repository.AttendanceRepo)(nil)
	_ SeatingStore     = (*repository.SeatingRepo)(nil)
	_ VehicleStore     = (*repository.VehicleRepo)(nil)
)

// dedupe drops zero and repeated ids, keeping first-seen order.
func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
