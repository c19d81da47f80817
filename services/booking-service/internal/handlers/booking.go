package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/availability"
	"github.com/salonbook/salonbook/services/booking-service/internal/guard"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

type createAppointmentRequest struct {
	ProviderID  string `json:"provider_id"`
	ServiceID   string `json:"service_id"`
	Date        string `json:"date"`
	StartMinute *int   `json:"start_minute"`
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type appointmentResponse struct {
	AppointmentID      string `json:"appointment_id"`
	ClientID           string `json:"client_id"`
	ProviderID         string `json:"provider_id"`
	ServiceID          string `json:"service_id"`
	Date               string `json:"date"`
	StartMinute        int    `json:"start_minute"`
	EndMinute          int    `json:"end_minute"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	PriceMinorSnapshot int64  `json:"price_minor_snapshot"`
	Status             string `json:"status"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

type slotItem struct {
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type slotsResponse struct {
	ProviderID string     `json:"provider_id"`
	ServiceID  string     `json:"service_id"`
	Date       string     `json:"date"`
	Slots      []slotItem `json:"slots"`
}

type appointmentsResponse struct {
	Filter       string                `json:"filter,omitempty"`
	Appointments []appointmentResponse `json:"appointments"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID:      a.ID,
		ClientID:           a.ClientID,
		ProviderID:         a.ProviderID,
		ServiceID:          a.ServiceID,
		Date:               a.Date.String(),
		StartMinute:        a.StartMinute,
		EndMinute:          a.EndMinute,
		StartTime:          clock(a.StartMinute),
		EndTime:            clock(a.EndMinute),
		PriceMinorSnapshot: a.PriceMinorSnapshot,
		Status:             string(a.Status),
		CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toAppointmentList(appts []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toSlotItems(slots []availability.Slot) []slotItem {
	out := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotItem{StartMinute: s.Start, EndMinute: s.End, StartTime: clock(s.Start), EndTime: clock(s.End)})
	}
	return out
}

// Slots is public: clients browse availability before signing in.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	providerID, err := requiredQuery(r, "provider_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	serviceID, err := requiredQuery(r, "service_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	date, err := queryDate(r, "date", true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	slots, err := h.engine.GetAvailability(r.Context(), providerID, serviceID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{
		ProviderID: providerID,
		ServiceID:  serviceID,
		Date:       date.String(),
		Slots:      toSlotItems(slots),
	})
}

func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listAppointments(w, r)
	case http.MethodPost:
		h.createAppointment(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actor.Role != model.RoleClient {
		h.writeError(w, r, model.ErrForbidden)
		return
	}

	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.StartMinute == nil {
		h.writeError(w, r, fmt.Errorf("%w: start_minute is required", model.ErrInvalidArgument))
		return
	}
	date, err := model.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	appt, err := h.engine.CreateAppointment(r.Context(), guard.Request{
		ClientID:       actor.ID,
		ProviderID:     strings.TrimSpace(req.ProviderID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		Date:           date,
		StartMinute:    *req.StartMinute,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter, err := model.ParseListFilter(strings.TrimSpace(r.URL.Query().Get("filter")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	appts, err := h.engine.ListAppointments(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentsResponse{Filter: string(filter), Appointments: toAppointmentList(appts)})
}

func (h *Handler) AppointmentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		h.writeError(w, r, fmt.Errorf("%w: appointment_id is required", model.ErrInvalidArgument))
		return
	}
	to, err := model.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	appt, err := h.engine.TransitionStatus(r.Context(), req.AppointmentID, to, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}
