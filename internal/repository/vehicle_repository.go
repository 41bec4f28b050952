package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
)

// VehicleTx mirrors SeatingTx for vehicle placements.
type VehicleTx interface {
	LockVehicle(ctx context.Context, vehicleID uint64) (*model.Vehicle, error)
	// AssignedParticipants returns which of ids already ride this vehicle.
	AssignedParticipants(ctx context.Context, vehicleID uint64, ids []uint64) (map[uint64]bool, error)
	InsertAssignments(ctx context.Context, rows []model.VehicleAssignment) error
}

// VehicleRepo stores vehicles and vehicle assignments.
type VehicleRepo struct {
	db *sql.DB
}

// NewVehicleRepo returns a VehicleRepo bound to db.
func NewVehicleRepo(db *sql.DB) *VehicleRepo { return &VehicleRepo{db: db} }

var vehicleKeys = map[string]error{
	"uq_vehicles_label":                          ErrVehicleLabelTaken,
	"uq_vehicle_assignments_vehicle_participant": ErrDuplicate,
}

const vehicleSelect = `SELECT v.id, v.label, v.capacity, v.created_at,
	(SELECT COUNT(*) FROM vehicle_assignments a WHERE a.vehicle_id = v.id) AS occupied
	FROM vehicles v`

const assignmentColumns = `id, vehicle_id, participant_id, status, pickup_location, pickup_at,
	dropoff_location, dropoff_at, status_updated_at`

func scanVehicle(row rowScanner) (*model.Vehicle, error) {
	var (
		v        model.Vehicle
		capacity sql.NullInt64
	)
	if err := row.Scan(&v.ID, &v.Label, &capacity, &v.CreatedAt, &v.Occupied); err != nil {
		return nil, err
	}
	if capacity.Valid {
		c := uint32(capacity.Int64)
		v.Capacity = &c
	}
	return &v, nil
}

func scanVehicleAssignment(row rowScanner) (*model.VehicleAssignment, error) {
	var (
		a                    model.VehicleAssignment
		pickLoc, dropLoc     sql.NullString
		pickAt, dropAt, upAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.VehicleID, &a.ParticipantID, &a.Status, &pickLoc, &pickAt,
		&dropLoc, &dropAt, &upAt)
	if err != nil {
		return nil, err
	}
	a.PickupLocation = nullString(pickLoc)
	a.DropoffLocation = nullString(dropLoc)
	a.PickupAt = nullTime(pickAt)
	a.DropoffAt = nullTime(dropAt)
	a.StatusUpdatedAt = nullTime(upAt)
	return &a, nil
}

// InTx runs fn with a VehicleTx bound to a fresh transaction.
func (r *VehicleRepo) InTx(ctx context.Context, fn func(VehicleTx) error) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&vehicleTx{tx: tx})
	})
}

// CreateVehicle inserts v; ErrVehicleLabelTaken on a duplicate label.
func (r *VehicleRepo) CreateVehicle(ctx context.Context, v *model.Vehicle) error {
	res, err := r.db.ExecContext(ctx, "INSERT INTO vehicles (label, capacity) VALUES (?, ?)", v.Label, v.Capacity)
	if err != nil {
		if mapped := mapDuplicate(err, vehicleKeys); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert vehicle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	v.CreatedAt = time.Now().UTC()
	return nil
}

// GetVehicle returns the vehicle with its current occupancy.
func (r *VehicleRepo) GetVehicle(ctx context.Context, id uint64) (*model.Vehicle, error) {
	v, err := scanVehicle(r.db.QueryRowContext(ctx, vehicleSelect+" WHERE v.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	return v, err
}

// ListVehicles returns every vehicle ordered by label.
func (r *VehicleRepo) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx, vehicleSelect+" ORDER BY v.label")
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()
	out := make([]model.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// VehicleAssignments lists who rides a vehicle.
func (r *VehicleRepo) VehicleAssignments(ctx context.Context, vehicleID uint64) ([]model.VehicleAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+assignmentColumns+" FROM vehicle_assignments WHERE vehicle_id = ? ORDER BY id", vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list vehicle assignments: %w", err)
	}
	defer rows.Close()
	out := make([]model.VehicleAssignment, 0)
	for rows.Next() {
		a, err := scanVehicleAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAssignment returns a single vehicle assignment.
func (r *VehicleRepo) GetAssignment(ctx context.Context, id uint64) (*model.VehicleAssignment, error) {
	a, err := scanVehicleAssignment(r.db.QueryRowContext(ctx,
		"SELECT "+assignmentColumns+" FROM vehicle_assignments WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	return a, err
}

// UpdateStatus moves an assignment from one status to the next.  The
// update is guarded on the current status so two operators racing on the
// same assignment cannot both apply a step; the loser gets ErrConflict.
func (r *VehicleRepo) UpdateStatus(ctx context.Context, id uint64, from, to string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE vehicle_assignments SET status = ?, status_updated_at = ? WHERE id = ? AND status = ?",
		to, at.UTC(), id, from)
	if err != nil {
		return fmt.Errorf("update vehicle status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

type vehicleTx struct {
	tx *sql.Tx
}

func (s *vehicleTx) LockVehicle(ctx context.Context, vehicleID uint64) (*model.Vehicle, error) {
	var (
		v        model.Vehicle
		capacity sql.NullInt64
	)
	err := s.tx.QueryRowContext(ctx,
		"SELECT id, label, capacity, created_at FROM vehicles WHERE id = ? FOR UPDATE", vehicleID).
		Scan(&v.ID, &v.Label, &capacity, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock vehicle: %w", err)
	}
	if capacity.Valid {
		c := uint32(capacity.Int64)
		v.Capacity = &c
	}
	if err := s.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vehicle_assignments WHERE vehicle_id = ?", vehicleID).Scan(&v.Occupied); err != nil {
		return nil, fmt.Errorf("count riders: %w", err)
	}
	return &v, nil
}

func (s *vehicleTx) AssignedParticipants(ctx context.Context, vehicleID uint64, ids []uint64) (map[uint64]bool, error) {
	assigned := make(map[uint64]bool)
	if len(ids) == 0 {
		return assigned, nil
	}
	args := append([]any{vehicleID}, uint64Args(ids)...)
	rows, err := s.tx.QueryContext(ctx,
		"SELECT participant_id FROM vehicle_assignments WHERE vehicle_id = ? AND participant_id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("assigned riders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		assigned[id] = true
	}
	return assigned, rows.Err()
}

func (s *vehicleTx) InsertAssignments(ctx context.Context, rows []model.VehicleAssignment) error {
	if len(rows) == 0 {
		return nil
	}
	query := `INSERT INTO vehicle_assignments (vehicle_id, participant_id, status, pickup_location, pickup_at,
		dropoff_location, dropoff_at) VALUES `
	args := make([]any, 0, len(rows)*7)
	for i, a := range rows {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, a.VehicleID, a.ParticipantID, a.Status, a.PickupLocation, utcPtr(a.PickupAt),
			a.DropoffLocation, utcPtr(a.DropoffAt))
	}
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isMissingParent(err) {
			return ErrParticipantNotFound
		}
		if mapped := mapDuplicate(err, vehicleKeys); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert vehicle assignments: %w", err)
	}
	first, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert vehicle assignments: %w", err)
	}
	for i := range rows {
		rows[i].ID = uint64(first) + uint64(i)
	}
	return nil
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
