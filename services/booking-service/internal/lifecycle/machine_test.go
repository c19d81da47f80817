package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/events"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage/memory"
)

var (
	client   = model.Actor{Role: model.RoleClient, ID: "c1"}
	provider = model.Actor{Role: model.RoleProvider, ID: "prov-1"}
	fixedNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
)

var allStatuses = []model.Status{model.StatusPending, model.StatusConfirmed, model.StatusCompleted, model.StatusCancelled}

func seeded(t *testing.T, st model.Status) *memory.Store {
	t.Helper()
	s := memory.New()
	appt := model.Appointment{
		ID:          "a1",
		ClientID:    "c1",
		ProviderID:  "prov-1",
		ServiceID:   "svc-1",
		Date:        model.Date{Year: 2026, Month: time.March, Day: 2},
		StartMinute: 600,
		EndMinute:   660,
		Status:      st,
		CreatedAt:   fixedNow,
		UpdatedAt:   fixedNow,
	}
	if err := s.InsertAppointment(context.Background(), appt, outbox.Event{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func newMachine(s Store) *Machine {
	return New(s, WithClock(func() time.Time { return fixedNow.Add(time.Hour) }))
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to model.Status
		actor    model.Actor
		want     error
	}{
		{model.StatusPending, model.StatusConfirmed, provider, nil},
		{model.StatusPending, model.StatusConfirmed, client, model.ErrForbidden},
		{model.StatusPending, model.StatusCancelled, client, nil},
		{model.StatusPending, model.StatusCancelled, provider, nil},
		{model.StatusConfirmed, model.StatusCancelled, client, nil},
		{model.StatusConfirmed, model.StatusCancelled, provider, nil},
		{model.StatusConfirmed, model.StatusCompleted, provider, nil},
		{model.StatusConfirmed, model.StatusCompleted, client, model.ErrForbidden},
	}
	for _, tc := range cases {
		s := seeded(t, tc.from)
		got, err := newMachine(s).Transition(context.Background(), "a1", tc.to, tc.actor)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s->%s by %s: got %v want %v", tc.from, tc.to, tc.actor.Role, err, tc.want)
		}
		stored, _ := s.GetAppointment(context.Background(), "a1")
		if tc.want == nil {
			if got.Status != tc.to || stored.Status != tc.to {
				t.Fatalf("%s->%s: status not applied (%s/%s)", tc.from, tc.to, got.Status, stored.Status)
			}
			pending := s.Pending()
			if len(pending) != 1 || pending[0].Event.EventType != events.TypeForStatus(tc.to) {
				t.Fatalf("%s->%s: expected one %s event, got %+v", tc.from, tc.to, events.TypeForStatus(tc.to), pending)
			}
		} else if stored.Status != tc.from {
			t.Fatalf("%s->%s: rejected transition changed status to %s", tc.from, tc.to, stored.Status)
		}
	}
}

func TestIllegalEdgesLeaveStatusUnchanged(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			if Allowed(from, to) {
				continue
			}
			s := seeded(t, from)
			_, err := newMachine(s).Transition(context.Background(), "a1", to, provider)
			if !errors.Is(err, model.ErrInvalidTransition) {
				t.Fatalf("%s->%s: expected invalid transition, got %v", from, to, err)
			}
			stored, _ := s.GetAppointment(context.Background(), "a1")
			if stored.Status != from {
				t.Fatalf("%s->%s: status changed to %s", from, to, stored.Status)
			}
			if len(s.Pending()) != 0 {
				t.Fatalf("%s->%s: rejected transition emitted an event", from, to)
			}
		}
	}
}

func TestStrangerIsForbidden(t *testing.T) {
	s := seeded(t, model.StatusPending)
	m := newMachine(s)
	strangers := []model.Actor{
		{Role: model.RoleClient, ID: "c2"},
		{Role: model.RoleProvider, ID: "prov-2"},
		{Role: model.RoleClient, ID: "prov-1"},
	}
	for _, actor := range strangers {
		if _, err := m.Transition(context.Background(), "a1", model.StatusCancelled, actor); !errors.Is(err, model.ErrForbidden) {
			t.Fatalf("%+v: expected forbidden, got %v", actor, err)
		}
	}
}

func TestTransitionInputErrors(t *testing.T) {
	s := seeded(t, model.StatusPending)
	m := newMachine(s)
	if _, err := m.Transition(context.Background(), "missing", model.StatusCancelled, client); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := m.Transition(context.Background(), "a1", "archived", client); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := m.Transition(context.Background(), "a1", model.StatusCancelled, model.Actor{Role: "admin", ID: "x"}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for role, got %v", err)
	}
}

// racingStore loses every compare-and-swap.
type racingStore struct {
	*memory.Store
	mu    sync.Mutex
	calls int
}

func (r *racingStore) UpdateStatus(context.Context, string, model.Status, model.Status, time.Time, outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return model.ErrStaleState
}

func TestStaleStateRetriesThenConflict(t *testing.T) {
	rs := &racingStore{Store: seeded(t, model.StatusPending)}
	m := New(rs, WithMaxAttempts(3))
	_, err := m.Transition(context.Background(), "a1", model.StatusCancelled, client)
	if !errors.Is(err, model.ErrTransitionConflict) {
		t.Fatalf("expected transition conflict, got %v", err)
	}
	if rs.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", rs.calls)
	}
}

// flakyStore loses the first compare-and-swap after another writer confirms.
type flakyStore struct {
	*memory.Store
	once sync.Once
}

func (f *flakyStore) UpdateStatus(ctx context.Context, id string, to, expected model.Status, at time.Time, evt outbox.Event) error {
	var raced bool
	f.once.Do(func() {
		raced = true
		_ = f.Store.UpdateStatus(ctx, id, model.StatusConfirmed, model.StatusPending, at, outbox.Event{})
	})
	if raced {
		return model.ErrStaleState
	}
	return f.Store.UpdateStatus(ctx, id, to, expected, at, evt)
}

func TestStaleStateRevalidatesAgainstFreshStatus(t *testing.T) {
	fs := &flakyStore{Store: seeded(t, model.StatusPending)}
	got, err := newMachine(fs).Transition(context.Background(), "a1", model.StatusCancelled, client)
	if err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Fatalf("unexpected status %s", got.Status)
	}
	pending := fs.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected one event, got %d", len(pending))
	}
	if pending[0].Event.EventType != events.AppointmentCancelled {
		t.Fatalf("unexpected event %s", pending[0].Event.EventType)
	}
}

func TestRaceBetweenRolesHasOneWinner(t *testing.T) {
	s := seeded(t, model.StatusPending)
	m := newMachine(s)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = m.Transition(context.Background(), "a1", model.StatusConfirmed, provider)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = m.Transition(context.Background(), "a1", model.StatusCancelled, client)
	}()
	wg.Wait()

	stored, _ := s.GetAppointment(context.Background(), "a1")
	switch stored.Status {
	case model.StatusConfirmed:
		// the cancel exhausted its retries
		if errs[0] != nil {
			t.Fatalf("confirm reported %v but was applied", errs[0])
		}
	case model.StatusCancelled:
		if errs[1] != nil {
			t.Fatalf("cancel reported %v but was applied", errs[1])
		}
	default:
		t.Fatalf("unexpected final status %s", stored.Status)
	}
}
