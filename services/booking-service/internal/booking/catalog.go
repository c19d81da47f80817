package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

type ServiceInput struct {
	Name            string
	PriceMinor      int64
	DurationMinutes int
}

// Profile is what a client sees before booking with a provider.
type Profile struct {
	Provider model.Provider
	Services []model.Service
	Hours    model.Week
}

// UpsertProvider registers or renames the calling provider.
func (e *Engine) UpsertProvider(ctx context.Context, actor model.Actor, displayName string) (model.Provider, error) {
	if err := requireProvider(actor); err != nil {
		return model.Provider{}, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return model.Provider{}, fmt.Errorf("%w: display name is required", model.ErrInvalidArgument)
	}
	p, err := e.store.UpsertProvider(ctx, model.Provider{ID: actor.ID, DisplayName: displayName, CreatedAt: e.now().UTC()})
	if err != nil {
		return model.Provider{}, err
	}
	e.logger.Info("provider profile saved", "provider_id", p.ID)
	return p, nil
}

func (e *Engine) ListProviders(ctx context.Context) ([]model.Provider, error) {
	providers, err := e.store.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	if providers == nil {
		providers = []model.Provider{}
	}
	return providers, nil
}

func (e *Engine) GetProviderProfile(ctx context.Context, providerID string) (Profile, error) {
	p, err := e.store.GetProvider(ctx, providerID)
	if err != nil {
		return Profile{}, err
	}
	services, err := e.store.ListServices(ctx, providerID, false)
	if err != nil {
		return Profile{}, err
	}
	hours, err := e.store.GetWorkingHours(ctx, providerID)
	if err != nil {
		return Profile{}, err
	}
	if services == nil {
		services = []model.Service{}
	}
	return Profile{Provider: p, Services: services, Hours: hours}, nil
}

// ListServices returns the provider's catalog. Inactive services are only
// visible to the provider who owns them.
func (e *Engine) ListServices(ctx context.Context, actor model.Actor, providerID string, includeInactive bool) ([]model.Service, error) {
	if providerID == "" {
		return nil, fmt.Errorf("%w: provider_id is required", model.ErrInvalidArgument)
	}
	if includeInactive && (actor.Role != model.RoleProvider || actor.ID != providerID) {
		return nil, fmt.Errorf("%w: inactive services are visible to their provider only", model.ErrForbidden)
	}
	services, err := e.store.ListServices(ctx, providerID, includeInactive)
	if err != nil {
		return nil, err
	}
	if services == nil {
		services = []model.Service{}
	}
	return services, nil
}

func (e *Engine) CreateService(ctx context.Context, actor model.Actor, in ServiceInput) (model.Service, error) {
	if err := requireProvider(actor); err != nil {
		return model.Service{}, err
	}
	if _, err := e.store.GetProvider(ctx, actor.ID); err != nil {
		return model.Service{}, fmt.Errorf("provider profile: %w", err)
	}
	now := e.now().UTC()
	svc := model.Service{
		ID:              uuid.NewString(),
		ProviderID:      actor.ID,
		Name:            strings.TrimSpace(in.Name),
		PriceMinor:      in.PriceMinor,
		DurationMinutes: in.DurationMinutes,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := svc.Validate(); err != nil {
		return model.Service{}, err
	}
	if err := e.store.CreateService(ctx, svc); err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

// UpdateService edits name, price and duration. Existing appointments keep
// their snapshot price and end minute.
func (e *Engine) UpdateService(ctx context.Context, actor model.Actor, serviceID string, in ServiceInput) (model.Service, error) {
	svc, err := e.ownedService(ctx, actor, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	svc.Name = strings.TrimSpace(in.Name)
	svc.PriceMinor = in.PriceMinor
	svc.DurationMinutes = in.DurationMinutes
	svc.UpdatedAt = e.now().UTC()
	if err := svc.Validate(); err != nil {
		return model.Service{}, err
	}
	if err := e.store.UpdateService(ctx, svc); err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

// SetServiceActive soft-disables or re-enables a service.
func (e *Engine) SetServiceActive(ctx context.Context, actor model.Actor, serviceID string, active bool) (model.Service, error) {
	svc, err := e.ownedService(ctx, actor, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	if svc.Active == active {
		return svc, nil
	}
	svc.Active = active
	svc.UpdatedAt = e.now().UTC()
	if err := e.store.UpdateService(ctx, svc); err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

func (e *Engine) ownedService(ctx context.Context, actor model.Actor, serviceID string) (model.Service, error) {
	if err := requireProvider(actor); err != nil {
		return model.Service{}, err
	}
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	if svc.ProviderID != actor.ID {
		return model.Service{}, fmt.Errorf("%w: service %s belongs to another provider", model.ErrForbidden, serviceID)
	}
	return svc, nil
}

func (e *Engine) GetWorkingHours(ctx context.Context, providerID string) (model.Week, error) {
	if providerID == "" {
		return model.Week{}, fmt.Errorf("%w: provider_id is required", model.ErrInvalidArgument)
	}
	return e.store.GetWorkingHours(ctx, providerID)
}

// SetWorkingHours replaces the given weekdays for the calling provider.
// Weekdays not listed keep their current rule.
func (e *Engine) SetWorkingHours(ctx context.Context, actor model.Actor, days []model.WorkingHours) (model.Week, error) {
	if err := requireProvider(actor); err != nil {
		return model.Week{}, err
	}
	if len(days) == 0 {
		return model.Week{}, fmt.Errorf("%w: at least one weekday is required", model.ErrInvalidArgument)
	}
	seen := map[int]bool{}
	for _, d := range days {
		if err := d.Validate(); err != nil {
			return model.Week{}, err
		}
		if seen[int(d.Weekday)] {
			return model.Week{}, fmt.Errorf("%w: weekday %d listed twice", model.ErrInvalidArgument, d.Weekday)
		}
		seen[int(d.Weekday)] = true
	}
	if err := e.store.SetWorkingHours(ctx, actor.ID, days); err != nil {
		return model.Week{}, err
	}
	e.logger.Info("working hours updated", "provider_id", actor.ID, "days", len(days))
	return e.store.GetWorkingHours(ctx, actor.ID)
}
