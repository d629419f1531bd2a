package ticket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the read-only ticket API on r:
//
//	GET /api/tickets            list (query: status, limit, offset)
//	GET /api/tickets/stats      counts by status and category
//	GET /api/tickets/{id}       one ticket with transcript
func (s *Store) Routes(r chi.Router) {
	r.Get("/api/tickets", s.handleList)
	r.Get("/api/tickets/stats", s.handleStats)
	r.Get("/api/tickets/{id}", s.handleGet)
}

func (s *Store) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	tickets, err := s.List(r.Context(), q.Get("status"), limit, offset)
	if err != nil {
		slog.Error("ticket list failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if tickets == nil {
		tickets = []Ticket{}
	}
	writeJSON(w, map[string]any{"tickets": tickets, "count": len(tickets)})
}

func (s *Store) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.GetStats(r.Context())
	if err != nil {
		slog.Error("ticket stats failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (s *Store) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.Get(r.Context(), id)
	if err != nil {
		slog.Error("ticket get failed", "id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if t == nil {
		http.Error(w, "ticket not found", http.StatusNotFound)
		return
	}
	writeJSON(w, t)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("ticket encode response", "err", err)
	}
}
