package httpapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"gamebattle/arena/internal/reports"
)

func (h *HandlerSet) adminReports(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	filed, err := h.reports.Get(r.Context(), mux.Vars(r)["team"])
	if err != nil {
		h.fail(w, err)
		return
	}
	if filed == nil {
		filed = []reports.Report{}
	}
	writeJSON(w, filed)
}

func (h *HandlerSet) adminExclude(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.reports.Exclude(r.Context(), mux.Vars(r)["team"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) adminInclude(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.reports.Include(r.Context(), mux.Vars(r)["team"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) adminExcluded(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	excluded, err := h.reports.ExcludedGames(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	ids := make([]string, 0, len(excluded))
	for id := range excluded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	writeJSON(w, ids)
}

// historyEntry is one vote in the admin-visible preference log.
type historyEntry struct {
	Games      [2]string `json:"games"`
	FirstScore float64   `json:"first_score"`
	Author     string    `json:"author"`
	Timestamp  string    `json:"timestamp"`
}

func (h *HandlerSet) adminHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	log, err := h.preferences.SortedPreferences(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	entries := make([]historyEntry, 0, len(log))
	for _, pref := range log {
		entries = append(entries, historyEntry{
			Games:      pref.Games,
			FirstScore: pref.FirstScore,
			Author:     pref.Author,
			Timestamp:  pref.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, entries)
}
