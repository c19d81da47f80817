package gormstore

import (
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"gorm.io/datatypes"
)

type providerRow struct {
	ID          string    `gorm:"type:varchar(64);primaryKey"`
	DisplayName string    `gorm:"type:varchar(255);not null;index"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime:false"`
}

func (providerRow) TableName() string { return "providers" }

type serviceRow struct {
	ID              string    `gorm:"type:varchar(64);primaryKey"`
	ProviderID      string    `gorm:"type:varchar(64);not null;index"`
	Name            string    `gorm:"type:varchar(255);not null"`
	PriceMinor      int64     `gorm:"not null"`
	DurationMinutes int       `gorm:"not null"`
	Active          bool      `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (serviceRow) TableName() string { return "services" }

type workingHoursRow struct {
	ProviderID  string `gorm:"type:varchar(64);primaryKey"`
	Weekday     int    `gorm:"primaryKey;autoIncrement:false"`
	StartMinute int    `gorm:"not null"`
	EndMinute   int    `gorm:"not null"`
	BreakStart  int    `gorm:"not null;default:0"`
	BreakEnd    int    `gorm:"not null;default:0"`
	Active      bool   `gorm:"not null"`
}

func (workingHoursRow) TableName() string { return "working_hours" }

type appointmentRow struct {
	ID                 string         `gorm:"type:varchar(64);primaryKey"`
	ClientID           string         `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_appointments_client_idem,priority:1"`
	ProviderID         string         `gorm:"type:varchar(64);not null;index:idx_appointments_provider_date,priority:1"`
	ServiceID          string         `gorm:"type:varchar(64);not null"`
	Date               datatypes.Date `gorm:"not null;index:idx_appointments_provider_date,priority:2"`
	StartMinute        int            `gorm:"not null"`
	EndMinute          int            `gorm:"not null"`
	PriceMinorSnapshot int64          `gorm:"not null"`
	Status             string         `gorm:"type:varchar(16);not null;index"`
	IdempotencyKey     *string        `gorm:"type:varchar(128);uniqueIndex:idx_appointments_client_idem,priority:2"`
	CreatedAt          time.Time      `gorm:"not null;autoCreateTime:false"`
	UpdatedAt          time.Time      `gorm:"not null;autoUpdateTime:false"`
}

func (appointmentRow) TableName() string { return "appointments" }

type outboxRow struct {
	ID            int64      `gorm:"primaryKey;autoIncrement"`
	EventID       string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	AggregateType string     `gorm:"type:varchar(64);not null"`
	AggregateID   string     `gorm:"type:varchar(64);not null"`
	EventType     string     `gorm:"type:varchar(128);not null"`
	Payload       []byte     `gorm:"not null"`
	Traceparent   string     `gorm:"type:varchar(128);not null;default:''"`
	Tracestate    string     `gorm:"type:varchar(512);not null;default:''"`
	CreatedAt     time.Time  `gorm:"not null;autoCreateTime:false"`
	PublishedAt   *time.Time `gorm:"index"`
}

func (outboxRow) TableName() string { return "outbox_events" }

func toDate(d model.Date) datatypes.Date {
	return datatypes.Date(d.Time(time.UTC))
}

func fromDate(d datatypes.Date) model.Date {
	return model.DateOf(time.Time(d).UTC())
}

func (r appointmentRow) toModel() model.Appointment {
	a := model.Appointment{
		ID:                 r.ID,
		ClientID:           r.ClientID,
		ProviderID:         r.ProviderID,
		ServiceID:          r.ServiceID,
		Date:               fromDate(r.Date),
		StartMinute:        r.StartMinute,
		EndMinute:          r.EndMinute,
		PriceMinorSnapshot: r.PriceMinorSnapshot,
		Status:             model.Status(r.Status),
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
	if r.IdempotencyKey != nil {
		a.IdempotencyKey = *r.IdempotencyKey
	}
	return a
}

func appointmentFromModel(a model.Appointment) appointmentRow {
	r := appointmentRow{
		ID:                 a.ID,
		ClientID:           a.ClientID,
		ProviderID:         a.ProviderID,
		ServiceID:          a.ServiceID,
		Date:               toDate(a.Date),
		StartMinute:        a.StartMinute,
		EndMinute:          a.EndMinute,
		PriceMinorSnapshot: a.PriceMinorSnapshot,
		Status:             string(a.Status),
		CreatedAt:          a.CreatedAt.UTC(),
		UpdatedAt:          a.UpdatedAt.UTC(),
	}
	if a.IdempotencyKey != "" {
		key := a.IdempotencyKey
		r.IdempotencyKey = &key
	}
	return r
}

func (r serviceRow) toModel() model.Service {
	return model.Service{
		ID:              r.ID,
		ProviderID:      r.ProviderID,
		Name:            r.Name,
		PriceMinor:      r.PriceMinor,
		DurationMinutes: r.DurationMinutes,
		Active:          r.Active,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func serviceFromModel(s model.Service) serviceRow {
	return serviceRow{
		ID:              s.ID,
		ProviderID:      s.ProviderID,
		Name:            s.Name,
		PriceMinor:      s.PriceMinor,
		DurationMinutes: s.DurationMinutes,
		Active:          s.Active,
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
	}
}
