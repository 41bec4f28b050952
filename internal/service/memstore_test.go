package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/repository"
)

// memStore is an in-memory stand-in for the MySQL schema.  It enforces the
// same unique keys and serialises transactions behind one mutex, which is
// what SELECT ... FOR UPDATE gives the real seating path.
type memStore struct {
	mu     sync.Mutex
	nextID uint64

	participants map[uint64]*model.Participant
	events       map[uint64]*model.Event
	joins        map[[2]uint64]time.Time
	attendance   map[[2]uint64]*model.AttendanceRecord
	tables       map[uint64]*model.SeatingTable
	seats        []model.SeatAssignment
	vehicles     map[uint64]*model.Vehicle
	rides        []*model.VehicleAssignment

	// interleave runs once, inside the next seat insert, to simulate a
	// concurrent request committing between pre-check and insert.
	interleave func(m *memStore)

	displayLookups atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{
		participants: map[uint64]*model.Participant{},
		events:       map[uint64]*model.Event{},
		joins:        map[[2]uint64]time.Time{},
		attendance:   map[[2]uint64]*model.AttendanceRecord{},
		tables:       map[uint64]*model.SeatingTable{},
		vehicles:     map[uint64]*model.Vehicle{},
	}
}

func (m *memStore) id() uint64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) Participants() *memParticipants { return &memParticipants{m} }
func (m *memStore) Events() *memEvents             { return &memEvents{m} }
func (m *memStore) Attendance() *memAttendance     { return &memAttendance{m} }
func (m *memStore) Seating() *memSeating           { return &memSeating{m} }
func (m *memStore) Vehicles() *memVehicles         { return &memVehicles{m} }

func (m *memStore) seatCount(tableID uint64) uint32 {
	var n uint32
	for _, s := range m.seats {
		if s.TableID == tableID {
			n++
		}
	}
	return n
}

func (m *memStore) rideCount(vehicleID uint64) uint32 {
	var n uint32
	for _, r := range m.rides {
		if r.VehicleID == vehicleID {
			n++
		}
	}
	return n
}

// ---- participants ----

type memParticipants struct{ m *memStore }

func (s *memParticipants) Create(_ context.Context, p *model.Participant) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.participants {
		switch {
		case o.Email == p.Email:
			return repository.ErrEmailExists
		case o.DisplayID == p.DisplayID:
			return repository.ErrDisplayIDTaken
		case o.VerificationToken == p.VerificationToken:
			return repository.ErrTokenTaken
		}
	}
	p.ID = m.id()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.participants[p.ID] = &cp
	return nil
}

func (s *memParticipants) find(match func(*model.Participant) bool) (*model.Participant, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrParticipantNotFound
}

func (s *memParticipants) GetByID(_ context.Context, id uint64) (*model.Participant, error) {
	return s.find(func(p *model.Participant) bool { return p.ID == id })
}

func (s *memParticipants) GetByDisplayID(_ context.Context, displayID string) (*model.Participant, error) {
	s.m.displayLookups.Add(1)
	return s.find(func(p *model.Participant) bool { return p.DisplayID == displayID })
}

func (s *memParticipants) GetByToken(_ context.Context, token string) (*model.Participant, error) {
	token = strings.TrimSpace(token)
	return s.find(func(p *model.Participant) bool { return p.VerificationToken == token })
}

func (s *memParticipants) GetByEmail(_ context.Context, email string) (*model.Participant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.find(func(p *model.Participant) bool { return p.Email == email })
}

func (s *memParticipants) GetMany(_ context.Context, ids []uint64) ([]model.Participant, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Participant
	for _, id := range ids {
		if p, ok := m.participants[id]; ok {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memParticipants) UpdateProfile(_ context.Context, id uint64, prof model.Profile) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return repository.ErrParticipantNotFound
	}
	for _, o := range m.participants {
		if o.ID != id && o.Email == prof.Email {
			return repository.ErrEmailExists
		}
	}
	p.Profile = prof
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memParticipants) SetActive(_ context.Context, id uint64, active bool) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return repository.ErrParticipantNotFound
	}
	p.IsActive = active
	return nil
}

func (s *memParticipants) MarkVerified(_ context.Context, id uint64, at time.Time) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return repository.ErrParticipantNotFound
	}
	if p.VerifiedAt == nil {
		p.VerifiedAt = &at
	}
	return nil
}

// ---- events ----

type memEvents struct{ m *memStore }

func (s *memEvents) Create(_ context.Context, ev *model.Event) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = m.id()
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (s *memEvents) Update(_ context.Context, ev *model.Event) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; !ok {
		return repository.ErrEventNotFound
	}
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (s *memEvents) GetByID(_ context.Context, id uint64) (*model.Event, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func sortEvents(out []model.Event) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
}

func (s *memEvents) List(_ context.Context, activeOnly bool) ([]model.Event, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Event{}
	for _, ev := range m.events {
		if !activeOnly || ev.IsActive {
			out = append(out, *ev)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *memEvents) Join(_ context.Context, participantID, eventID uint64) (bool, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; !ok {
		return false, repository.ErrEventNotFound
	}
	key := [2]uint64{participantID, eventID}
	if _, ok := m.joins[key]; ok {
		return false, nil
	}
	m.joins[key] = time.Now()
	return true, nil
}

func (s *memEvents) Leave(_ context.Context, participantID, eventID uint64) (bool, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uint64{participantID, eventID}
	if _, ok := m.joins[key]; !ok {
		return false, nil
	}
	delete(m.joins, key)
	return true, nil
}

func (s *memEvents) HasJoined(_ context.Context, participantID, eventID uint64) (bool, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.joins[[2]uint64{participantID, eventID}]
	return ok, nil
}

func (s *memEvents) ListJoined(_ context.Context, participantID uint64) ([]model.Event, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Event{}
	for key := range m.joins {
		if key[0] == participantID {
			out = append(out, *m.events[key[1]])
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *memEvents) CountJoined(_ context.Context, eventID uint64) (int, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.joins {
		if key[1] == eventID {
			n++
		}
	}
	return n, nil
}

// ---- attendance ----

type memAttendance struct{ m *memStore }

func (s *memAttendance) Record(_ context.Context, participantID, eventID uint64, now time.Time) (*model.AttendanceRecord, bool, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uint64{participantID, eventID}
	rec, ok := m.attendance[key]
	created := false
	if !ok {
		at := now.UTC().Truncate(time.Second)
		rec = &model.AttendanceRecord{ID: m.id(), ParticipantID: participantID, EventID: eventID,
			Status: model.AttendanceScanned, ScannedAt: &at}
		m.attendance[key] = rec
		created = true
	}
	cp := *rec
	return &cp, created, nil
}

func (s *memAttendance) ListByEvent(_ context.Context, eventID uint64) ([]model.AttendanceRow, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AttendanceRow{}
	for key, rec := range m.attendance {
		if key[1] != eventID || rec.ScannedAt == nil {
			continue
		}
		p := m.participants[key[0]]
		out = append(out, model.AttendanceRow{ParticipantID: p.ID, DisplayID: p.DisplayID, Name: p.Name,
			Organization: p.Organization, ScannedAt: rec.ScannedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

// ---- seating ----

type memSeating struct{ m *memStore }

func (s *memSeating) InTx(_ context.Context, fn func(repository.SeatingTx) error) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memSeatTx{m: m}
	if err := fn(tx); err != nil {
		return err
	}
	m.seats = append(m.seats, tx.pending...)
	if tx.update != nil {
		cp := *tx.update
		m.tables[cp.ID] = &cp
	}
	return nil
}

func (s *memSeating) CreateTable(_ context.Context, t *model.SeatingTable) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[t.EventID]; !ok {
		return repository.ErrEventNotFound
	}
	for _, o := range m.tables {
		if o.EventID == t.EventID && o.TableNumber == t.TableNumber {
			return repository.ErrTableNumberTaken
		}
	}
	t.ID = m.id()
	cp := *t
	m.tables[t.ID] = &cp
	return nil
}

func (s *memSeating) GetTable(_ context.Context, id uint64) (*model.SeatingTable, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	if !ok {
		return nil, repository.ErrTableNotFound
	}
	cp := *t
	cp.Occupied = m.seatCount(id)
	return &cp, nil
}

func (s *memSeating) ListTables(_ context.Context, eventID uint64) ([]model.SeatingTable, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.SeatingTable{}
	for _, t := range m.tables {
		if t.EventID == eventID {
			cp := *t
			cp.Occupied = m.seatCount(t.ID)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out, nil
}

func (s *memSeating) TableAssignments(_ context.Context, tableID uint64) ([]model.SeatAssignment, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.SeatAssignment{}
	for _, a := range m.seats {
		if a.TableID == tableID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out, nil
}

func (s *memSeating) Unseat(_ context.Context, participantID uint64) (bool, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.seats {
		if a.ParticipantID == participantID {
			m.seats = append(m.seats[:i], m.seats[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// memSeatTx runs with memStore.mu held; writes are staged until commit.
type memSeatTx struct {
	m       *memStore
	pending []model.SeatAssignment
	update  *model.SeatingTable
}

func (tx *memSeatTx) LockTable(_ context.Context, tableID uint64) (*model.SeatingTable, error) {
	t, ok := tx.m.tables[tableID]
	if !ok {
		return nil, repository.ErrTableNotFound
	}
	cp := *t
	cp.Occupied = tx.m.seatCount(tableID)
	return &cp, nil
}

func (tx *memSeatTx) SeatedParticipants(_ context.Context, ids []uint64) (map[uint64]bool, error) {
	want := map[uint64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	seated := map[uint64]bool{}
	for _, a := range tx.m.seats {
		if want[a.ParticipantID] {
			seated[a.ParticipantID] = true
		}
	}
	return seated, nil
}

func (tx *memSeatTx) MaxSeatNumber(_ context.Context, tableID uint64) (uint32, error) {
	var top uint32
	for _, a := range tx.m.seats {
		if a.TableID == tableID && a.SeatNumber > top {
			top = a.SeatNumber
		}
	}
	return top, nil
}

func (tx *memSeatTx) InsertAssignments(_ context.Context, rows []model.SeatAssignment) error {
	if hook := tx.m.interleave; hook != nil {
		tx.m.interleave = nil
		hook(tx.m)
	}
	all := append(append([]model.SeatAssignment{}, tx.m.seats...), tx.pending...)
	staged := make([]model.SeatAssignment, 0, len(rows))
	for i, r := range rows {
		for _, o := range append(all, staged...) {
			if o.ParticipantID == r.ParticipantID {
				return repository.ErrAlreadySeated
			}
			if o.TableID == r.TableID && o.SeatNumber == r.SeatNumber {
				return repository.ErrConflict
			}
		}
		r.ID = tx.m.id()
		rows[i].ID = r.ID
		staged = append(staged, r)
	}
	tx.pending = append(tx.pending, staged...)
	return nil
}

func (tx *memSeatTx) UpdateTable(_ context.Context, t *model.SeatingTable) error {
	for _, o := range tx.m.tables {
		if o.ID != t.ID && o.EventID == t.EventID && o.TableNumber == t.TableNumber {
			return repository.ErrTableNumberTaken
		}
	}
	cp := *t
	tx.update = &cp
	return nil
}

// seatDirect seats a participant outside any service call, as another
// request would have done.
func (m *memStore) seatDirect(tableID, participantID uint64) {
	top := uint32(0)
	for _, a := range m.seats {
		if a.TableID == tableID && a.SeatNumber > top {
			top = a.SeatNumber
		}
	}
	m.seats = append(m.seats, model.SeatAssignment{ID: m.id(), TableID: tableID, ParticipantID: participantID,
		SeatNumber: top + 1, AssignedAt: time.Now().UTC()})
}

// ---- vehicles ----

type memVehicles struct{ m *memStore }

func (s *memVehicles) InTx(_ context.Context, fn func(repository.VehicleTx) error) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memVehicleTx{m: m}
	if err := fn(tx); err != nil {
		return err
	}
	m.rides = append(m.rides, tx.pending...)
	return nil
}

func (s *memVehicles) CreateVehicle(_ context.Context, v *model.Vehicle) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.vehicles {
		if o.Label == v.Label {
			return repository.ErrVehicleLabelTaken
		}
	}
	v.ID = m.id()
	cp := *v
	m.vehicles[v.ID] = &cp
	return nil
}

func (s *memVehicles) GetVehicle(_ context.Context, id uint64) (*model.Vehicle, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, repository.ErrVehicleNotFound
	}
	cp := *v
	cp.Occupied = m.rideCount(id)
	return &cp, nil
}

func (s *memVehicles) ListVehicles(_ context.Context) ([]model.Vehicle, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Vehicle{}
	for _, v := range m.vehicles {
		cp := *v
		cp.Occupied = m.rideCount(v.ID)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s *memVehicles) VehicleAssignments(_ context.Context, vehicleID uint64) ([]model.VehicleAssignment, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.VehicleAssignment{}
	for _, r := range m.rides {
		if r.VehicleID == vehicleID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memVehicles) GetAssignment(_ context.Context, id uint64) (*model.VehicleAssignment, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rides {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrAssignmentNotFound
}

func (s *memVehicles) UpdateStatus(_ context.Context, id uint64, from, to string, at time.Time) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rides {
		if r.ID == id {
			if r.Status != from {
				return repository.ErrConflict
			}
			r.Status = to
			r.StatusUpdatedAt = &at
			return nil
		}
	}
	return repository.ErrConflict
}

type memVehicleTx struct {
	m       *memStore
	pending []*model.VehicleAssignment
}

func (tx *memVehicleTx) LockVehicle(_ context.Context, id uint64) (*model.Vehicle, error) {
	v, ok := tx.m.vehicles[id]
	if !ok {
		return nil, repository.ErrVehicleNotFound
	}
	cp := *v
	cp.Occupied = tx.m.rideCount(id)
	return &cp, nil
}

func (tx *memVehicleTx) AssignedParticipants(_ context.Context, vehicleID uint64, ids []uint64) (map[uint64]bool, error) {
	want := map[uint64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := map[uint64]bool{}
	for _, r := range tx.m.rides {
		if r.VehicleID == vehicleID && want[r.ParticipantID] {
			out[r.ParticipantID] = true
		}
	}
	return out, nil
}

func (tx *memVehicleTx) InsertAssignments(_ context.Context, rows []model.VehicleAssignment) error {
	staged := make([]*model.VehicleAssignment, 0, len(rows))
	for i, r := range rows {
		for _, o := range append(append(append([]*model.VehicleAssignment{}, tx.m.rides...), tx.pending...), staged...) {
			if o.VehicleID == r.VehicleID && o.ParticipantID == r.ParticipantID {
				return repository.ErrDuplicate
			}
		}
		r := r
		r.ID = tx.m.id()
		rows[i].ID = r.ID
		staged = append(staged, &r)
	}
	tx.pending = append(tx.pending, staged...)
	return nil
}

// Compile-time checks that the fake satisfies the service ports.
var (
	_ ParticipantStore = (*memParticipants)(nil)
	_ EventStore       = (*memEvents)(nil)
	_ AttendanceStore  = (*memAttendance)(nil)
	_ SeatingStore     = (*memSeating)(nil)
	_ VehicleStore     = (*memVehicles)(nil)
)
