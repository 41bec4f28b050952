package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
	"github.com/iliyamo/conference-checkin/internal/queue"
)

var displayIDPattern = regexp.MustCompile(`^CONF-[A-Z2-9]{4}-[A-Z2-9]{4}$`)

func TestRegisterCreatesIdentity(t *testing.T) {
	w := newWorld(t)
	phone := " +62 811 000 "
	p, err := w.registry.Register(context.Background(), RegisterInput{
		Name:         "  Ana Putri ",
		Email:        "Ana@Example.COM",
		Organization: "Acme",
		Phone:        &phone,
		Password:     "secret-password",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !displayIDPattern.MatchString(p.DisplayID) {
		t.Fatalf("display id %q does not match format", p.DisplayID)
	}
	if p.VerificationToken == "" || p.PasswordHash == "" {
		t.Fatal("token and password hash must be set")
	}
	if p.Email != "ana@example.com" || p.Name != "Ana Putri" || p.Phone == nil || *p.Phone != "+62 811 000" {
		t.Fatalf("profile not normalised: %+v", p.Profile)
	}
	if !p.IsActive {
		t.Fatal("new participant should be active")
	}

	msgs := w.notes.waitFor(t, 1)
	if msgs[0].queue != queue.QueueParticipantRegistered {
		t.Fatalf("published to %s", msgs[0].queue)
	}
	ev := msgs[0].msg.(queue.ParticipantRegisteredEvent)
	if ev.DisplayID != p.DisplayID || ev.Phone != "+62 811 000" {
		t.Fatalf("unexpected event %+v", ev)
	}
	token, err := w.sealer.Open(ev.CredentialPayload)
	if err != nil || token != p.VerificationToken {
		t.Fatalf("credential payload should open to the token: %q %v", token, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	w := newWorld(t)
	tests := []struct {
		name   string
		in     RegisterInput
		fields []string
	}{
		{"empty", RegisterInput{}, []string{"name", "email", "organization", "password"}},
		{"bad email", RegisterInput{Name: "a", Email: "nope", Organization: "o", Password: "secret-password"}, []string{"email"}},
		{"short password", RegisterInput{Name: "a", Email: "a@b.co", Organization: "o", Password: "short"}, []string{"password"}},
		{"blank name", RegisterInput{Name: "   ", Email: "a@b.co", Organization: "o", Password: "secret-password"}, []string{"name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.registry.Register(context.Background(), tt.in)
			se := requireKind(t, err, KindValidation)
			if len(se.Fields) != len(tt.fields) {
				t.Fatalf("fields = %v, want %v", se.Fields, tt.fields)
			}
			for _, f := range tt.fields {
				if se.Fields[f] == "" {
					t.Fatalf("missing message for %s in %v", f, se.Fields)
				}
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	w := newWorld(t)
	w.register(t, "ana")
	_, err := w.registry.Register(context.Background(), RegisterInput{
		Name: "Other", Email: " ANA@example.com", Organization: "x", Password: "secret-password",
	})
	se := requireKind(t, err, KindValidation)
	if se.Fields["email"] == "" {
		t.Fatalf("expected email field error, got %v", se.Fields)
	}
}

func TestRegisterRetriesIdentityCollision(t *testing.T) {
	w := newWorld(t)
	ids := []string{"CONF-AAAA-AAAA", "CONF-AAAA-AAAA", "CONF-BBBB-BBBB"}
	var calls int
	w.registry.newID = func(string) (string, error) {
		id := ids[calls]
		calls++
		return id, nil
	}

	first := w.register(t, "first")
	second := w.register(t, "second")
	if first.DisplayID != "CONF-AAAA-AAAA" || second.DisplayID != "CONF-BBBB-BBBB" {
		t.Fatalf("got %s and %s", first.DisplayID, second.DisplayID)
	}
	if calls != 3 {
		t.Fatalf("expected 3 id draws, got %d", calls)
	}
}

func TestRegisterGivesUpAfterRepeatedCollisions(t *testing.T) {
	w := newWorld(t)
	w.registry.newID = func(string) (string, error) { return "CONF-AAAA-AAAA", nil }
	w.register(t, "first")

	_, err := w.registry.Register(context.Background(), RegisterInput{
		Name: "second", Email: "second@example.com", Organization: "x", Password: "secret-password",
	})
	if err == nil || KindOf(err) != "" {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestRegisterConcurrentIdentitiesUnique(t *testing.T) {
	w := newWorld(t)
	const n = 40
	var wg sync.WaitGroup
	out := make([]*model.Participant, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i], errs[i] = w.registry.Register(context.Background(), RegisterInput{
				Name: fmt.Sprintf("p%d", i), Email: fmt.Sprintf("p%d@example.com", i),
				Organization: "x", Password: "secret-password",
			})
		}(i)
	}
	wg.Wait()

	displayIDs := map[string]bool{}
	tokens := map[string]bool{}
	for i, p := range out {
		if errs[i] != nil {
			t.Fatalf("register %d: %v", i, errs[i])
		}
		if displayIDs[p.DisplayID] || tokens[p.VerificationToken] {
			t.Fatalf("identity reused: %s", p.DisplayID)
		}
		displayIDs[p.DisplayID] = true
		tokens[p.VerificationToken] = true
	}
}

func TestRegisterSurvivesNotifierFailure(t *testing.T) {
	w := newWorld(t)
	w.notes.fail = true
	p := w.register(t, "ana")
	if _, err := w.registry.Get(context.Background(), p.ID); err != nil {
		t.Fatalf("participant should exist: %v", err)
	}
}

func TestUpdateProfileKeepsIdentity(t *testing.T) {
	w := newWorld(t)
	p := w.register(t, "ana")
	w.register(t, "ben")

	country := "ID"
	got, err := w.registry.UpdateProfile(context.Background(), p.ID, ProfileInput{
		Name: "Ana P", Email: "ana.p@example.com", Organization: "Beta", Country: &country,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DisplayID != p.DisplayID || got.VerificationToken != p.VerificationToken {
		t.Fatal("identity fields changed on profile update")
	}
	if got.Name != "Ana P" || got.Organization != "Beta" || got.Country == nil {
		t.Fatalf("profile not updated: %+v", got.Profile)
	}

	_, err = w.registry.UpdateProfile(context.Background(), p.ID, ProfileInput{
		Name: "Ana", Email: "ben@example.com", Organization: "Beta",
	})
	if se := requireKind(t, err, KindValidation); se.Fields["email"] == "" {
		t.Fatalf("expected email conflict, got %v", se.Fields)
	}

	_, err = w.registry.UpdateProfile(context.Background(), 999, ProfileInput{
		Name: "x", Email: "x@example.com", Organization: "x",
	})
	requireKind(t, err, KindNotFound)
}

func TestAuthenticate(t *testing.T) {
	w := newWorld(t)
	p := w.register(t, "ana")
	ctx := context.Background()

	got, err := w.registry.Authenticate(ctx, "ana@example.com", "secret-password")
	if err != nil || got.ID != p.ID {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := w.registry.Authenticate(ctx, "ana@example.com", "wrong-password"); !errors.Is(err, ErrInvalidLogin) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := w.registry.Authenticate(ctx, "nobody@example.com", "secret-password"); !errors.Is(err, ErrInvalidLogin) {
		t.Fatalf("unknown email: %v", err)
	}

	if err := w.registry.Deactivate(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	_, err = w.registry.Authenticate(ctx, "ana@example.com", "secret-password")
	requireKind(t, err, KindIneligible)
}

func TestCredentialIsFreshEachTime(t *testing.T) {
	w := newWorld(t)
	p := w.register(t, "ana")
	a, err := w.registry.Credential(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := w.registry.Credential(context.Background(), p.ID)
	if a == b {
		t.Fatal("two credentials should differ")
	}
	for _, payload := range []string{a, b} {
		if token, err := w.sealer.Open(payload); err != nil || token != p.VerificationToken {
			t.Fatalf("payload does not open to token: %v", err)
		}
	}
}

func TestMarkVerifiedKeepsFirstTime(t *testing.T) {
	w := newWorld(t)
	p := w.register(t, "ana")
	ctx := context.Background()

	first, err := w.registry.MarkVerified(ctx, p.ID)
	if err != nil || first.VerifiedAt == nil {
		t.Fatalf("verify: %v", err)
	}
	w.clock = w.clock.Add(time.Hour)
	second, _ := w.registry.MarkVerified(ctx, p.ID)
	if !second.VerifiedAt.Equal(*first.VerifiedAt) {
		t.Fatal("verification time was overwritten")
	}
	_, err = w.registry.MarkVerified(ctx, 999)
	requireKind(t, err, KindNotFound)
}

func TestJoinAndLeaveEvent(t *testing.T) {
	w := newWorld(t)
	p := w.register(t, "ana")
	ev := w.event(t, "Opening", testNow.Add(time.Hour))
	ctx := context.Background()

	created, err := w.registry.JoinEvent(ctx, p.ID, ev.ID)
	if err != nil || !created {
		t.Fatalf("first join: %v %v", created, err)
	}
	created, err = w.registry.JoinEvent(ctx, p.ID, ev.ID)
	if err != nil || created {
		t.Fatalf("second join should be a no-op: %v %v", created, err)
	}
	joined, _ := w.registry.JoinedEvents(ctx, p.ID)
	if len(joined) != 1 || joined[0].ID != ev.ID {
		t.Fatalf("joined = %+v", joined)
	}

	if err := w.registry.LeaveEvent(ctx, p.ID, ev.ID); err != nil {
		t.Fatal(err)
	}
	se := requireKind(t, w.registry.LeaveEvent(ctx, p.ID, ev.ID), KindNotFound)
	if se.Message != MsgNotJoined {
		t.Fatalf("message = %q", se.Message)
	}

	_, err = w.registry.JoinEvent(ctx, p.ID, 999)
	requireKind(t, err, KindNotFound)
}

func TestJoinEventRejectsClosedAndInactive(t *testing.T) {
	w := newWorld(t)
	p := w.register(t, "ana")
	ctx := context.Background()

	past := w.event(t, "Yesterday", testNow.Add(-24*time.Hour))
	_, err := w.registry.JoinEvent(ctx, p.ID, past.ID)
	if se := requireKind(t, err, KindIneligible); se.Message != MsgEventClosed {
		t.Fatalf("message = %q", se.Message)
	}

	open := w.event(t, "Today", testNow.Add(time.Hour))
	if err := w.registry.Deactivate(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	_, err = w.registry.JoinEvent(ctx, p.ID, open.ID)
	if se := requireKind(t, err, KindIneligible); se.Message != MsgInactive {
		t.Fatalf("message = %q", se.Message)
	}
}
