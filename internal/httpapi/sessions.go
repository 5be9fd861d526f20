package httpapi

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/metrics"
	"gamebattle/arena/internal/pairing"
	"gamebattle/arena/internal/prefs"
	"gamebattle/arena/internal/reports"
	"gamebattle/arena/internal/session"
)

const pairCapacity = 2

// sessionID parses the path id; an unparseable id is indistinguishable
// from a missing session.
func sessionID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fault.NotFoundf("session %q", raw)
	}
	return id, nil
}

func gameIndex(r *http.Request) int {
	n, _ := strconv.Atoi(mux.Vars(r)["n"])
	return n
}

func (h *HandlerSet) listSessions(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make(map[string]session.Public)
	for _, id := range h.manager.UserSessions(identity.Email) {
		s, err := h.manager.Get(identity.Email, id)
		if err != nil {
			continue
		}
		out[id.String()] = s.PublicView()
	}
	writeJSON(w, out)
}

func (h *HandlerSet) createSession(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !h.enableCompetition {
		h.fail(w, fault.ErrCompetitionDisabled)
		return
	}
	id, _, err := h.manager.Create(r.Context(), identity.Email, h.engine.Pair, pairCapacity)
	if err != nil {
		h.fail(w, err)
		return
	}
	metrics.SessionsCreated.WithLabelValues("elo_pair").Inc()
	metrics.SessionsActive.Set(float64(h.manager.Count()))
	writeJSON(w, id)
}

func (h *HandlerSet) createOwnSession(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if h.enableCompetition && !identity.Admin {
		h.fail(w, fault.ErrCompetitionDisabled)
		return
	}

	var body struct {
		GameID *string `json:"game_id"`
	}
	if r.ContentLength > 0 {
		if err := readJSON(r, &body); err != nil {
			h.fail(w, err)
			return
		}
	}
	if body.GameID != nil && !identity.Admin {
		h.fail(w, fault.ErrForbidden)
		return
	}

	// 1.- Make room: replace any previous own-game session. Admins may
	// clear paired sessions too.
	for _, id := range h.manager.UserSessions(identity.Email) {
		s, err := h.manager.Get(identity.Email, id)
		if err != nil {
			continue
		}
		if len(s.Games()) != 1 && !identity.Admin {
			continue
		}
		if err := h.manager.Stop(r.Context(), identity.Email, id); err != nil {
			h.log.Warn().Err(err).Str("session", id.String()).Msg("stop before own launch")
		}
	}

	strategy := pairing.Own(h.roster)
	if body.GameID != nil {
		strategy = pairing.Specified(*body.GameID)
	}
	id, _, err := h.manager.Create(r.Context(), identity.Email, strategy, 1)
	if err != nil {
		h.fail(w, err)
		return
	}
	metrics.SessionsCreated.WithLabelValues("own").Inc()
	metrics.SessionsActive.Set(float64(h.manager.Count()))
	writeJSON(w, id)
}

func (h *HandlerSet) getSession(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	id, err := sessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	s, err := h.manager.Get(identity.Email, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, s.PublicView())
}

func (h *HandlerSet) stopSession(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	id, err := sessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.manager.Stop(r.Context(), identity.Email, id); err != nil {
		h.fail(w, err)
		return
	}
	metrics.SessionsActive.Set(float64(h.manager.Count()))
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) restartGame(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	id, err := sessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	g, err := h.manager.GetGame(identity.Email, id, gameIndex(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := g.Restart(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) getPreference(w http.ResponseWriter, r *http.Request) {
	if _, err := h.identify(r); err != nil {
		h.fail(w, err)
		return
	}
	id, err := sessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	pref, ok, err := h.preferences.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		writeJSON(w, nil)
		return
	}
	writeJSON(w, map[string]float64{"first_score": pref.FirstScore})
}

func (h *HandlerSet) setPreference(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !h.enableCompetition {
		h.fail(w, fault.ErrCompetitionDisabled)
		return
	}
	id, err := sessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var body struct {
		ScoreFirst float64 `json:"score_first"`
	}
	if err := readJSON(r, &body); err != nil {
		h.fail(w, err)
		return
	}
	if body.ScoreFirst < 0 || body.ScoreFirst > 1 {
		h.fail(w, fault.Invalidf("score_first %v outside [0, 1]", body.ScoreFirst))
		return
	}

	s, err := h.manager.Get(identity.Email, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !s.Over() {
		h.fail(w, fault.Gamebattlef("session is not over"))
		return
	}
	sessionGames := s.Games()
	if len(sessionGames) != pairCapacity {
		h.fail(w, fault.Invalidf("session holds %d games, not a pair", len(sessionGames)))
		return
	}

	pref := prefs.Preference{
		Games:      [2]string{sessionGames[0].Meta().TeamID, sessionGames[1].Meta().TeamID},
		FirstScore: body.ScoreFirst,
		Author:     identity.Email,
		Timestamp:  time.Now(),
	}
	if err := h.preferences.Set(r.Context(), id, pref); err != nil {
		h.fail(w, err)
		return
	}
	metrics.VotesRecorded.Inc()
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) reportGame(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !h.enableCompetition {
		h.fail(w, fault.ErrCompetitionDisabled)
		return
	}
	if !h.reportLimiter.Allow() {
		http.Error(w, "too many reports, slow down", http.StatusTooManyRequests)
		return
	}
	id, err := sessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var body struct {
		ShortReason   string `json:"short_reason"`
		Reason        string `json:"reason"`
		CaptureOutput bool   `json:"capture_output"`
		RestartGame   bool   `json:"restart_game"`
	}
	if err := readJSON(r, &body); err != nil {
		h.fail(w, err)
		return
	}
	if !reports.ValidShortReason(body.ShortReason) {
		h.fail(w, fault.Invalidf("short_reason %q", body.ShortReason))
		return
	}

	index := gameIndex(r)
	if body.RestartGame {
		// A voted-on session keeps its games; replacing one would orphan
		// the recorded preference.
		if _, voted, err := h.preferences.Get(r.Context(), id); err != nil {
			h.fail(w, err)
			return
		} else if voted {
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	g, err := h.manager.GetGame(identity.Email, id, index)
	if err != nil {
		h.fail(w, err)
		return
	}
	meta := g.Meta()

	var output string
	if body.CaptureOutput {
		output = base64.StdEncoding.EncodeToString(g.AccumulatedOutput())
	}

	report := reports.Report{
		Session:     id,
		ShortReason: body.ShortReason,
		Reason:      body.Reason,
		Output:      output,
		Author:      identity.Email,
	}
	count, err := h.engine.Report(r.Context(), meta, report)
	if err != nil {
		h.fail(w, err)
		return
	}
	metrics.ReportsFiled.WithLabelValues(body.ShortReason).Inc()
	h.webhook.send(meta, report, count)

	if body.RestartGame {
		if err := h.manager.ReplaceGame(r.Context(), identity.Email, id, index, h.engine.Pair); err != nil {
			h.fail(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
