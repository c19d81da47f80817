package handlers

import "net/http"

type earningsResponse struct {
	From           string         `json:"from"`
	To             string         `json:"to"`
	CompletedCount int            `json:"completed_count"`
	TotalMinor     int64          `json:"total_minor"`
	CountsByStatus map[string]int `json:"counts_by_status"`
}

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	date, err := queryDate(r, "date", false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	includeCancelled, err := queryBool(r, "include_cancelled")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	appts, err := h.engine.DaySchedule(r.Context(), actor, date, includeCancelled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if date.IsZero() {
		date = h.engine.Today()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":         date.String(),
		"appointments": toAppointmentList(appts),
	})
}

func (h *Handler) Earnings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	from, err := queryDate(r, "from", true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := queryDate(r, "to", true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	earn, err := h.engine.Earnings(r.Context(), actor, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	counts := make(map[string]int, len(earn.CountsByStatus))
	for st, n := range earn.CountsByStatus {
		counts[string(st)] = n
	}
	writeJSON(w, http.StatusOK, earningsResponse{
		From:           earn.From.String(),
		To:             earn.To.String(),
		CompletedCount: earn.CompletedCount,
		TotalMinor:     earn.TotalMinor,
		CountsByStatus: counts,
	})
}
