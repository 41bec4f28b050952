package model

import "time"

// Vehicle pickup statuses in the only order they may be reached.
const (
	VehiclePending    = "pending"
	VehiclePickedUp   = "picked_up"
	VehicleDroppedOff = "dropped_off"
)

var vehicleStatusRank = map[string]int{
	VehiclePending:    0,
	VehiclePickedUp:   1,
	VehicleDroppedOff: 2,
}

// ValidVehicleStatus reports whether s is a known pickup status.
func ValidVehicleStatus(s string) bool {
	_, ok := vehicleStatusRank[s]
	return ok
}

// NextVehicleStatus reports whether moving from -> to is a single forward
// step (pending -> picked_up -> dropped_off).
func NextVehicleStatus(from, to string) bool {
	a, okA := vehicleStatusRank[from]
	b, okB := vehicleStatusRank[to]
	return okA && okB && b == a+1
}

// Vehicle is a shuttle or car used to move participants.  A nil Capacity
// means the vehicle is not capped.
type Vehicle struct {
	ID        uint64    `json:"id"`
	Label     string    `json:"label"`
	Capacity  *uint32   `json:"capacity,omitempty"`
	Occupied  uint32    `json:"occupied"`
	CreatedAt time.Time `json:"-"`
}

// Pickup carries the optional logistics shared by a batch of assignments.
type Pickup struct {
	PickupLocation  *string    `json:"pickup_location,omitempty"`
	PickupAt        *time.Time `json:"pickup_at,omitempty"`
	DropoffLocation *string    `json:"dropoff_location,omitempty"`
	DropoffAt       *time.Time `json:"dropoff_at,omitempty"`
}

// VehicleAssignment places a participant in a vehicle and tracks the
// pickup/dropoff progress.
type VehicleAssignment struct {
	ID              uint64     `json:"id"`
	VehicleID       uint64     `json:"vehicle_id"`
	ParticipantID   uint64     `json:"participant_id"`
	Status          string     `json:"status"`
	Pickup                     // locations and scheduled times
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`
}
