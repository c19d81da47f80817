// Package memory is a process-wide Store used by tests and single-node
// development runs. State lives until the process exits.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	otelx "github.com/salonbook/salonbook/libs/otel"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage"
)

type Store struct {
	mu           sync.RWMutex
	providers    map[string]model.Provider
	services     map[string]model.Service
	hours        map[string]model.Week
	appointments map[string]model.Appointment
	byDay        map[dayKey][]string
	idempotency  map[idemKey]string

	// relaying serializes Relay calls; relayMu guards the outbox rows and is
	// never held while events are published.
	relaying sync.Mutex
	relayMu  sync.Mutex
	outbox   []outboxRow
	nextID   int64
	now      func() time.Time
}

type dayKey struct {
	providerID string
	date       model.Date
}

type idemKey struct {
	clientID string
	key      string
}

type outboxRow struct {
	record    outbox.Record
	published bool
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		providers:    map[string]model.Provider{},
		services:     map[string]model.Service{},
		hours:        map[string]model.Week{},
		appointments: map[string]model.Appointment{},
		byDay:        map[dayKey][]string{},
		idempotency:  map[idemKey]string{},
		now:          time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error { return nil }

func (s *Store) GetWorkingHours(_ context.Context, providerID string) (model.Week, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.hours[providerID]; ok {
		return w, nil
	}
	return model.ClosedWeek(), nil
}

func (s *Store) GetAppointments(_ context.Context, providerID string, date model.Date, includeCancelled bool) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Appointment
	for _, id := range s.byDay[dayKey{providerID, date}] {
		a := s.appointments[id]
		if a.Status == model.StatusCancelled && !includeCancelled {
			continue
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b model.Appointment) int {
		if a.Before(b) {
			return -1
		}
		if b.Before(a) {
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, model.ErrNotFound)
	}
	return a, nil
}

func (s *Store) FindByIdempotencyKey(_ context.Context, clientID, key string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idempotency[idemKey{clientID, key}]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return s.appointments[id], nil
}

func (s *Store) InsertAppointment(ctx context.Context, appt model.Appointment, evt outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.appointments[appt.ID]; exists {
		return fmt.Errorf("appointment %s already exists: %w", appt.ID, model.ErrConflict)
	}
	if appt.IdempotencyKey != "" {
		if _, exists := s.idempotency[idemKey{appt.ClientID, appt.IdempotencyKey}]; exists {
			return fmt.Errorf("idempotency key reused: %w", model.ErrConflict)
		}
	}
	key := dayKey{appt.ProviderID, appt.Date}
	if appt.Blocks() {
		for _, id := range s.byDay[key] {
			other := s.appointments[id]
			if other.Blocks() && model.Overlaps(appt.StartMinute, appt.EndMinute, other.StartMinute, other.EndMinute) {
				return fmt.Errorf("overlaps appointment %s: %w", other.ID, model.ErrConflict)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.appointments[appt.ID] = appt
	s.byDay[key] = append(s.byDay[key], appt.ID)
	if appt.IdempotencyKey != "" {
		s.idempotency[idemKey{appt.ClientID, appt.IdempotencyKey}] = appt.ID
	}
	s.appendEvent(ctx, evt)
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus, expected model.Status, at time.Time, evt outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("appointment %s: %w", id, model.ErrNotFound)
	}
	if a.Status != expected {
		return fmt.Errorf("appointment %s is %s, expected %s: %w", id, a.Status, expected, model.ErrStaleState)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.Status = newStatus
	a.UpdatedAt = at
	s.appointments[id] = a
	s.appendEvent(ctx, evt)
	return nil
}

func (s *Store) ListAppointments(_ context.Context, q storage.AppointmentQuery) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Appointment
	for _, a := range s.appointments {
		if q.Matches(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b model.Appointment) int {
		if a.Before(b) {
			return -1
		}
		if b.Before(a) {
			return 1
		}
		return 0
	})
	return out, nil
}

// appendEvent must be called with s.mu held.
func (s *Store) appendEvent(ctx context.Context, evt outbox.Event) {
	if evt.EventType == "" {
		return
	}
	s.relayMu.Lock()
	defer s.relayMu.Unlock()
	s.nextID++
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	s.outbox = append(s.outbox, outboxRow{record: outbox.Record{
		ID:          s.nextID,
		EventID:     uuid.NewString(),
		Event:       evt,
		Traceparent: traceparent,
		Tracestate:  tracestate,
		CreatedAt:   s.now().UTC(),
	}})
}

func (s *Store) Relay(ctx context.Context, limit int, fn func(context.Context, []outbox.Record) error) (int, error) {
	s.relaying.Lock()
	defer s.relaying.Unlock()

	batch := s.unpublished(limit)
	if len(batch) == 0 {
		return 0, nil
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}

	s.relayMu.Lock()
	defer s.relayMu.Unlock()
	done := make(map[int64]bool, len(batch))
	for _, r := range batch {
		done[r.ID] = true
	}
	for i := range s.outbox {
		if done[s.outbox[i].record.ID] {
			s.outbox[i].published = true
		}
	}
	// Drop the published prefix so the slice does not grow without bound.
	n := 0
	for n < len(s.outbox) && s.outbox[n].published {
		n++
	}
	s.outbox = s.outbox[n:]
	return len(batch), nil
}

// unpublished copies up to limit pending records; limit <= 0 means all.
func (s *Store) unpublished(limit int) []outbox.Record {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()
	var batch []outbox.Record
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		batch = append(batch, row.record)
		if len(batch) == limit {
			break
		}
	}
	return batch
}

// Pending returns unpublished events, oldest first.
func (s *Store) Pending() []outbox.Record {
	return s.unpublished(0)
}

func (s *Store) UpsertProvider(_ context.Context, p model.Provider) (model.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.providers[p.ID]; ok {
		existing.DisplayName = p.DisplayName
		s.providers[p.ID] = existing
		return existing, nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.providers[p.ID] = p
	return p, nil
}

func (s *Store) GetProvider(_ context.Context, id string) (model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return model.Provider{}, fmt.Errorf("provider %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListProviders(context.Context) ([]model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.Provider) int {
		if c := strings.Compare(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetService(_ context.Context, id string) (model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return model.Service{}, fmt.Errorf("service %s: %w", id, model.ErrNotFound)
	}
	return svc, nil
}

func (s *Store) ListServices(_ context.Context, providerID string, includeInactive bool) ([]model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Service
	for _, svc := range s.services {
		if svc.ProviderID == providerID && (svc.Active || includeInactive) {
			out = append(out, svc)
		}
	}
	slices.SortFunc(out, func(a, b model.Service) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) CreateService(_ context.Context, svc model.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[svc.ID]; exists {
		return fmt.Errorf("service %s already exists: %w", svc.ID, model.ErrConflict)
	}
	s.services[svc.ID] = svc
	return nil
}

func (s *Store) UpdateService(_ context.Context, svc model.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[svc.ID]; !exists {
		return fmt.Errorf("service %s: %w", svc.ID, model.ErrNotFound)
	}
	s.services[svc.ID] = svc
	return nil
}

func (s *Store) SetWorkingHours(_ context.Context, providerID string, days []model.WorkingHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.hours[providerID]
	if !ok {
		w = model.ClosedWeek()
	}
	for _, d := range days {
		w[d.Weekday] = d
	}
	s.hours[providerID] = w
	return nil
}
