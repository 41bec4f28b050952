package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

type published struct {
	queue string
	msg   any
}

// recorder is a Notifier that keeps every message.  With fail set it
// rejects all publishes.
type recorder struct {
	mu   sync.Mutex
	msgs []published
	fail bool
}

func (r *recorder) Publish(_ context.Context, queue string, msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker unavailable")
	}
	r.msgs = append(r.msgs, published{queue: queue, msg: msg})
	return nil
}

// waitFor blocks until at least n messages arrived or fails the test.
func (r *recorder) waitFor(t *testing.T, n int) []published {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		r.mu.Lock()
		got := append([]published(nil), r.msgs...)
		r.mu.Unlock()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d notifications, got %d", n, len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type world struct {
	store     *memStore
	sealer    *utils.CredentialSealer
	notes     *recorder
	registry  *Registry
	verifier  *Verifier
	seating   *Seating
	transport *Transport
	programme *Programme
	clock     time.Time
}

func newWorld(t *testing.T) *world {
	t.Helper()
	sealer, err := utils.NewCredentialSealer("test-secret")
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	m := newMemStore()
	w := &world{store: m, sealer: sealer, notes: &recorder{}, clock: testNow}
	now := func() time.Time { return w.clock }

	w.registry = NewRegistry(m.Participants(), m.Events(), sealer, w.notes, "conf", bcrypt.MinCost, time.UTC)
	w.registry.now = now
	w.verifier = NewVerifier(m.Participants(), m.Events(), m.Attendance(), sealer, "conf", time.UTC)
	w.verifier.now = now
	w.seating = NewSeating(m.Seating(), m.Participants(), m.Events(), w.notes, nil)
	w.seating.now = now
	w.transport = NewTransport(m.Vehicles(), m.Participants(), w.notes)
	w.transport.now = now
	w.programme = NewProgramme(m.Events(), time.UTC)
	w.programme.now = now
	return w
}

func (w *world) register(t *testing.T, name string) *model.Participant {
	t.Helper()
	p, err := w.registry.Register(context.Background(), RegisterInput{
		Name:         name,
		Email:        name + "@example.com",
		Organization: "Acme",
		Password:     "secret-password",
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return p
}

func (w *world) registerMany(t *testing.T, n int) []uint64 {
	t.Helper()
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = w.register(t, fmt.Sprintf("p%d", i+1)).ID
	}
	return ids
}

func (w *world) event(t *testing.T, title string, startsAt time.Time) *model.Event {
	t.Helper()
	ev, err := w.programme.CreateEvent(context.Background(), EventInput{Title: title, StartsAt: startsAt})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func (w *world) join(t *testing.T, participantID, eventID uint64) {
	t.Helper()
	if _, err := w.registry.JoinEvent(context.Background(), participantID, eventID); err != nil {
		t.Fatalf("join: %v", err)
	}
}

func (w *world) table(t *testing.T, eventID uint64, number, capacity uint32) *model.SeatingTable {
	t.Helper()
	tb, err := w.seating.CreateTable(context.Background(), eventID, TableInput{TableNumber: number, Capacity: capacity})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return tb
}

// requireKind fails unless err is a service *Error of kind k and returns it.
func requireKind(t *testing.T, err error, k Kind) *Error {
	t.Helper()
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error of kind %s, got %v", k, err)
	}
	if se.Kind != k {
		t.Fatalf("expected kind %s, got %s (%s)", k, se.Kind, se.Message)
	}
	return se
}
