package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/booking"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

type providerRequest struct {
	DisplayName string `json:"display_name"`
}

type providerResponse struct {
	ProviderID  string `json:"provider_id"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

type serviceRequest struct {
	ServiceID       string `json:"service_id,omitempty"`
	Name            string `json:"name"`
	PriceMinor      int64  `json:"price_minor"`
	DurationMinutes int    `json:"duration_minutes"`
}

type serviceStatusRequest struct {
	ServiceID string `json:"service_id"`
	Active    *bool  `json:"active"`
}

type serviceResponse struct {
	ServiceID       string `json:"service_id"`
	ProviderID      string `json:"provider_id"`
	Name            string `json:"name"`
	PriceMinor      int64  `json:"price_minor"`
	DurationMinutes int    `json:"duration_minutes"`
	Active          bool   `json:"active"`
}

type workingHoursItem struct {
	Weekday          int  `json:"weekday"`
	StartMinute      int  `json:"start_minute"`
	EndMinute        int  `json:"end_minute"`
	BreakStartMinute int  `json:"break_start_minute"`
	BreakEndMinute   int  `json:"break_end_minute"`
	Active           bool `json:"active"`
}

type workingHoursRequest struct {
	Days []workingHoursItem `json:"days"`
}

type workingHoursResponse struct {
	ProviderID string             `json:"provider_id"`
	Days       []workingHoursItem `json:"days"`
}

type profileResponse struct {
	Provider providerResponse   `json:"provider"`
	Services []serviceResponse  `json:"services"`
	Days     []workingHoursItem `json:"working_hours"`
}

func toProviderResponse(p model.Provider) providerResponse {
	return providerResponse{ProviderID: p.ID, DisplayName: p.DisplayName, CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339)}
}

func toServiceResponse(s model.Service) serviceResponse {
	return serviceResponse{
		ServiceID:       s.ID,
		ProviderID:      s.ProviderID,
		Name:            s.Name,
		PriceMinor:      s.PriceMinor,
		DurationMinutes: s.DurationMinutes,
		Active:          s.Active,
	}
}

func toServiceList(services []model.Service) []serviceResponse {
	out := make([]serviceResponse, 0, len(services))
	for _, s := range services {
		out = append(out, toServiceResponse(s))
	}
	return out
}

func toWorkingHoursItems(week model.Week) []workingHoursItem {
	out := make([]workingHoursItem, 0, len(week))
	for _, d := range week {
		out = append(out, workingHoursItem{
			Weekday:          int(d.Weekday),
			StartMinute:      d.StartMinute,
			EndMinute:        d.EndMinute,
			BreakStartMinute: d.BreakStart,
			BreakEndMinute:   d.BreakEnd,
			Active:           d.Active,
		})
	}
	return out
}

func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		providers, err := h.engine.ListProviders(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		out := make([]providerResponse, 0, len(providers))
		for _, p := range providers {
			out = append(out, toProviderResponse(p))
		}
		writeJSON(w, http.StatusOK, map[string]any{"providers": out})
	case http.MethodPost:
		actor, err := actorFrom(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		var req providerRequest
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		p, err := h.engine.UpsertProvider(r.Context(), actor, req.DisplayName)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProviderResponse(p))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) ProviderProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	providerID, err := requiredQuery(r, "provider_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	profile, err := h.engine.GetProviderProfile(r.Context(), providerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Provider: toProviderResponse(profile.Provider),
		Services: toServiceList(profile.Services),
		Days:     toWorkingHoursItems(profile.Hours),
	})
}

func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listServices(w, r)
	case http.MethodPost, http.MethodPut:
		h.saveService(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut)
	}
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	actor, err := optionalActor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	providerID, err := requiredQuery(r, "provider_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	includeInactive, err := queryBool(r, "include_inactive")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	services, err := h.engine.ListServices(r.Context(), actor, providerID, includeInactive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": toServiceList(services)})
}

func (h *Handler) saveService(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in := booking.ServiceInput{Name: req.Name, PriceMinor: req.PriceMinor, DurationMinutes: req.DurationMinutes}

	if r.Method == http.MethodPost {
		svc, err := h.engine.CreateService(r.Context(), actor, in)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toServiceResponse(svc))
		return
	}

	serviceID := strings.TrimSpace(req.ServiceID)
	if serviceID == "" {
		h.writeError(w, r, fmt.Errorf("%w: service_id is required", model.ErrInvalidArgument))
		return
	}
	svc, err := h.engine.UpdateService(r.Context(), actor, serviceID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceResponse(svc))
}

func (h *Handler) ServiceStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req serviceStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ServiceID) == "" || req.Active == nil {
		h.writeError(w, r, fmt.Errorf("%w: service_id and active are required", model.ErrInvalidArgument))
		return
	}
	svc, err := h.engine.SetServiceActive(r.Context(), actor, strings.TrimSpace(req.ServiceID), *req.Active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceResponse(svc))
}

func (h *Handler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		providerID, err := requiredQuery(r, "provider_id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		week, err := h.engine.GetWorkingHours(r.Context(), providerID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, workingHoursResponse{ProviderID: providerID, Days: toWorkingHoursItems(week)})
	case http.MethodPut:
		actor, err := actorFrom(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		var req workingHoursRequest
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		days := make([]model.WorkingHours, 0, len(req.Days))
		for _, d := range req.Days {
			days = append(days, model.WorkingHours{
				Weekday:     time.Weekday(d.Weekday),
				StartMinute: d.StartMinute,
				EndMinute:   d.EndMinute,
				BreakStart:  d.BreakStartMinute,
				BreakEnd:    d.BreakEndMinute,
				Active:      d.Active,
			})
		}
		week, err := h.engine.SetWorkingHours(r.Context(), actor, days)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, workingHoursResponse{ProviderID: actor.ID, Days: toWorkingHoursItems(week)})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}
