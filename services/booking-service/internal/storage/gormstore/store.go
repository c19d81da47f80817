// Package gormstore implements storage.Store on GORM so the service can run
// against SQLite on a single node or against Postgres without the pgx backend.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	otelx "github.com/salonbook/salonbook/libs/otel"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver       string
	DSN          string
	MaxOpenConns int
	LogLevel     gormlogger.LogLevel
}

func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", cfg.Driver)
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = gormlogger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(cfg.LogLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db.DB(): %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return New(db), nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates every table the store uses.
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&providerRow{},
		&serviceRow{},
		&workingHoursRow{},
		&appointmentRow{},
		&outboxRow{},
	)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) isPostgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, model.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func (s *Store) GetWorkingHours(ctx context.Context, providerID string) (model.Week, error) {
	var rows []workingHoursRow
	if err := s.db.WithContext(ctx).Where("provider_id = ?", providerID).Find(&rows).Error; err != nil {
		return model.Week{}, translate(err, "working hours")
	}
	week := model.ClosedWeek()
	for _, r := range rows {
		if r.Weekday < 0 || r.Weekday > 6 {
			continue
		}
		week[r.Weekday] = model.WorkingHours{
			Weekday:     time.Weekday(r.Weekday),
			StartMinute: r.StartMinute,
			EndMinute:   r.EndMinute,
			BreakStart:  r.BreakStart,
			BreakEnd:    r.BreakEnd,
			Active:      r.Active,
		}
	}
	return week, nil
}

func (s *Store) SetWorkingHours(ctx context.Context, providerID string, days []model.WorkingHours) error {
	if len(days) == 0 {
		return nil
	}
	rows := make([]workingHoursRow, 0, len(days))
	for _, d := range days {
		rows = append(rows, workingHoursRow{
			ProviderID:  providerID,
			Weekday:     int(d.Weekday),
			StartMinute: d.StartMinute,
			EndMinute:   d.EndMinute,
			BreakStart:  d.BreakStart,
			BreakEnd:    d.BreakEnd,
			Active:      d.Active,
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}, {Name: "weekday"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_minute", "end_minute", "break_start", "break_end", "active"}),
	}).Create(&rows).Error
	return translate(err, "set working hours")
}

func (s *Store) GetAppointments(ctx context.Context, providerID string, date model.Date, includeCancelled bool) ([]model.Appointment, error) {
	q := s.db.WithContext(ctx).Where("provider_id = ? AND date = ?", providerID, toDate(date))
	if !includeCancelled {
		q = q.Where("status <> ?", string(model.StatusCancelled))
	}
	var rows []appointmentRow
	if err := q.Order("start_minute ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, "appointments")
	}
	return toModels(rows), nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	var row appointmentRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.Appointment{}, translate(err, "appointment "+id)
	}
	return row.toModel(), nil
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, clientID, key string) (model.Appointment, error) {
	var row appointmentRow
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND idempotency_key = ?", clientID, key).
		First(&row).Error
	if err != nil {
		return model.Appointment{}, translate(err, "idempotency key")
	}
	return row.toModel(), nil
}

func (s *Store) InsertAppointment(ctx context.Context, appt model.Appointment, evt outbox.Event) error {
	row := appointmentFromModel(appt)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.isPostgres() {
			// Serializes writers of one provider-day across connections.
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", appt.ProviderID+"|"+appt.Date.String()).Error; err != nil {
				return translate(err, "advisory lock")
			}
		}
		if appt.Blocks() {
			var overlapping int64
			err := tx.Model(&appointmentRow{}).
				Where("provider_id = ? AND date = ? AND status IN ?", appt.ProviderID, row.Date,
					[]string{string(model.StatusPending), string(model.StatusConfirmed)}).
				Where("start_minute < ? AND ? < end_minute", appt.EndMinute, appt.StartMinute).
				Count(&overlapping).Error
			if err != nil {
				return translate(err, "overlap check")
			}
			if overlapping > 0 {
				return fmt.Errorf("appointment overlaps an existing booking: %w", model.ErrConflict)
			}
		}
		if err := tx.Create(&row).Error; err != nil {
			return translate(err, "insert appointment")
		}
		return insertEvent(ctx, tx, evt)
	})
}

func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus, expected model.Status, at time.Time, evt outbox.Event) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&appointmentRow{}).
			Where("id = ? AND status = ?", id, string(expected)).
			Updates(map[string]any{"status": string(newStatus), "updated_at": at.UTC()})
		if res.Error != nil {
			return translate(res.Error, "update status")
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&appointmentRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return translate(err, "update status")
			}
			if n == 0 {
				return fmt.Errorf("appointment %s: %w", id, model.ErrNotFound)
			}
			return fmt.Errorf("appointment %s no longer %s: %w", id, expected, model.ErrStaleState)
		}
		return insertEvent(ctx, tx, evt)
	})
}

func (s *Store) ListAppointments(ctx context.Context, q storage.AppointmentQuery) ([]model.Appointment, error) {
	db := s.db.WithContext(ctx).Model(&appointmentRow{})
	if q.ClientID != "" {
		db = db.Where("client_id = ?", q.ClientID)
	}
	if q.ProviderID != "" {
		db = db.Where("provider_id = ?", q.ProviderID)
	}
	if len(q.Statuses) > 0 {
		db = db.Where("status IN ?", storage.StatusStrings(q.Statuses))
	}
	if !q.From.IsZero() {
		db = db.Where("date >= ?", toDate(q.From))
	}
	if !q.To.IsZero() {
		db = db.Where("date <= ?", toDate(q.To))
	}
	var rows []appointmentRow
	if err := db.Order("date ASC, start_minute ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, "list appointments")
	}
	return toModels(rows), nil
}

func insertEvent(ctx context.Context, tx *gorm.DB, evt outbox.Event) error {
	if evt.EventType == "" {
		return nil
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	row := outboxRow{
		EventID:       uuid.NewString(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       evt.Payload,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
		CreatedAt:     time.Now().UTC(),
	}
	return translate(tx.Create(&row).Error, "insert outbox event")
}

func (s *Store) Relay(ctx context.Context, limit int, fn func(context.Context, []outbox.Record) error) (int, error) {
	published := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("published_at IS NULL").Order("id ASC").Limit(limit)
		if s.isPostgres() {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var rows []outboxRow
		if err := q.Find(&rows).Error; err != nil {
			return translate(err, "fetch outbox")
		}
		if len(rows) == 0 {
			return nil
		}

		records := make([]outbox.Record, 0, len(rows))
		ids := make([]int64, 0, len(rows))
		for _, r := range rows {
			records = append(records, outbox.Record{
				ID:      r.ID,
				EventID: r.EventID,
				Event: outbox.Event{
					AggregateType: r.AggregateType,
					AggregateID:   r.AggregateID,
					EventType:     r.EventType,
					Payload:       r.Payload,
				},
				Traceparent: r.Traceparent,
				Tracestate:  r.Tracestate,
				CreatedAt:   r.CreatedAt.UTC(),
			})
			ids = append(ids, r.ID)
		}
		if err := fn(ctx, records); err != nil {
			return err
		}
		err := tx.Model(&outboxRow{}).Where("id IN ?", ids).Update("published_at", time.Now().UTC()).Error
		if err != nil {
			return translate(err, "mark published")
		}
		published = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func (s *Store) UpsertProvider(ctx context.Context, p model.Provider) (model.Provider, error) {
	row := providerRow{ID: p.ID, DisplayName: p.DisplayName, CreatedAt: p.CreatedAt.UTC()}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name"}),
	}).Create(&row).Error
	if err != nil {
		return model.Provider{}, translate(err, "upsert provider")
	}
	return s.GetProvider(ctx, p.ID)
}

func (s *Store) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var row providerRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.Provider{}, translate(err, "provider "+id)
	}
	return model.Provider{ID: row.ID, DisplayName: row.DisplayName, CreatedAt: row.CreatedAt.UTC()}, nil
}

func (s *Store) ListProviders(ctx context.Context) ([]model.Provider, error) {
	var rows []providerRow
	if err := s.db.WithContext(ctx).Order("display_name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, "list providers")
	}
	out := make([]model.Provider, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Provider{ID: r.ID, DisplayName: r.DisplayName, CreatedAt: r.CreatedAt.UTC()})
	}
	return out, nil
}

func (s *Store) GetService(ctx context.Context, id string) (model.Service, error) {
	var row serviceRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.Service{}, translate(err, "service "+id)
	}
	return row.toModel(), nil
}

func (s *Store) ListServices(ctx context.Context, providerID string, includeInactive bool) ([]model.Service, error) {
	q := s.db.WithContext(ctx).Where("provider_id = ?", providerID)
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	var rows []serviceRow
	if err := q.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, "list services")
	}
	out := make([]model.Service, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) CreateService(ctx context.Context, svc model.Service) error {
	row := serviceFromModel(svc)
	return translate(s.db.WithContext(ctx).Create(&row).Error, "create service")
}

func (s *Store) UpdateService(ctx context.Context, svc model.Service) error {
	res := s.db.WithContext(ctx).Model(&serviceRow{}).Where("id = ?", svc.ID).Updates(map[string]any{
		"name":             svc.Name,
		"price_minor":      svc.PriceMinor,
		"duration_minutes": svc.DurationMinutes,
		"active":           svc.Active,
		"updated_at":       svc.UpdatedAt.UTC(),
	})
	if res.Error != nil {
		return translate(res.Error, "update service")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("service %s: %w", svc.ID, model.ErrNotFound)
	}
	return nil
}

func toModels(rows []appointmentRow) []model.Appointment {
	out := make([]model.Appointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}
