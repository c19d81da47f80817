package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/salonbook/salonbook/libs/httpx"
	"github.com/salonbook/salonbook/services/booking-service/internal/booking"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

const (
	HeaderActorRole = "X-Actor-Role"
	HeaderActorID   = "X-Actor-Id"
)

var errUnauthenticated = errors.New("unauthenticated")

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// errorKinds lists the mapped errors in match order.
var errorKinds = []struct {
	err    error
	kind   string
	status int
}{
	{errUnauthenticated, "unauthenticated", http.StatusUnauthorized},
	{model.ErrInvalidArgument, "invalid_argument", http.StatusBadRequest},
	{model.ErrForbidden, "forbidden", http.StatusForbidden},
	{model.ErrNotFound, "not_found", http.StatusNotFound},
	{model.ErrSlotConflict, "slot_conflict", http.StatusConflict},
	{model.ErrInvalidTransition, "invalid_transition", http.StatusConflict},
	{model.ErrTransitionConflict, "transition_conflict", http.StatusConflict},
	{model.ErrConflict, "conflict", http.StatusConflict},
	{model.ErrInvalidService, "invalid_service", http.StatusUnprocessableEntity},
	{model.ErrOutsideWorkingHours, "outside_working_hours", http.StatusUnprocessableEntity},
	{model.ErrBusy, "busy", http.StatusServiceUnavailable},
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: "internal", Message: "internal error", RequestID: httpx.RequestIDFromContext(r.Context())}
	status := http.StatusInternalServerError
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			resp.Error, resp.Message, status = k.kind, err.Error(), k.status
			break
		}
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "err", err, "path", r.URL.Path, "request_id", resp.RequestID)
	}
	writeJSON(w, status, resp)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed", Message: "method not allowed"})
}

// actorFrom reads the caller identity injected by the gateway.
func actorFrom(r *http.Request) (model.Actor, error) {
	role := strings.TrimSpace(r.Header.Get(HeaderActorRole))
	id := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if role == "" || id == "" {
		return model.Actor{}, fmt.Errorf("%w: %s and %s headers are required", errUnauthenticated, HeaderActorRole, HeaderActorID)
	}
	parsed, err := model.ParseRole(role)
	if err != nil {
		return model.Actor{}, err
	}
	return model.Actor{Role: parsed, ID: id}, nil
}

// optionalActor is actorFrom for public endpoints; absent headers yield the
// zero Actor.
func optionalActor(r *http.Request) (model.Actor, error) {
	if r.Header.Get(HeaderActorRole) == "" && r.Header.Get(HeaderActorID) == "" {
		return model.Actor{}, nil
	}
	return actorFrom(r)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json body: %v", model.ErrInvalidArgument, err)
	}
	return nil
}

func requiredQuery(r *http.Request, key string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", model.ErrInvalidArgument, key)
	}
	return v, nil
}

func queryDate(r *http.Request, key string, required bool) (model.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		if required {
			return model.Date{}, fmt.Errorf("%w: %s is required", model.ErrInvalidArgument, key)
		}
		return model.Date{}, nil
	}
	return model.ParseDate(v)
}

func queryBool(r *http.Request, key string) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", model.ErrInvalidArgument, key)
	}
	return b, nil
}

// clock renders a minute of day as HH:MM.
func clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

type Handler struct {
	engine *booking.Engine
	logger *slog.Logger
}

func New(engine *booking.Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/providers", h.Providers)
	mux.HandleFunc("/api/v1/providers/profile", h.ProviderProfile)
	mux.HandleFunc("/api/v1/services", h.Services)
	mux.HandleFunc("/api/v1/services/status", h.ServiceStatus)
	mux.HandleFunc("/api/v1/working-hours", h.WorkingHours)
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/appointments", h.Appointments)
	mux.HandleFunc("/api/v1/appointments/status", h.AppointmentStatus)
	mux.HandleFunc("/api/v1/schedule", h.Schedule)
	mux.HandleFunc("/api/v1/earnings", h.Earnings)
}
