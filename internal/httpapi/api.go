// Package httpapi adapts the arena's core to HTTP and WebSocket clients:
// routing, auth extraction, error mapping and the voter-facing JSON shapes.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"gamebattle/arena/internal/auth"
	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/games"
	"gamebattle/arena/internal/launch"
	"gamebattle/arena/internal/logging"
	"gamebattle/arena/internal/metrics"
	"gamebattle/arena/internal/prefs"
	"gamebattle/arena/internal/rating"
	"gamebattle/arena/internal/reports"
	"gamebattle/arena/internal/session"
)

// Options wires a HandlerSet. Everything except the webhook and limiter
// settings is required.
type Options struct {
	Manager           *session.Manager
	Launcher          *launch.Launcher
	Roster            *games.Roster
	Engine            *rating.Engine
	Preferences       prefs.Store
	Reports           reports.Store
	Verifier          *auth.Verifier
	EnableCompetition bool
	WebhookURL        string
	ReportWindow      time.Duration
	ReportBurst       int
	Logger            *zerolog.Logger
}

// HandlerSet carries the HTTP surface and its collaborators.
type HandlerSet struct {
	manager           *session.Manager
	launcher          *launch.Launcher
	roster            *games.Roster
	engine            *rating.Engine
	preferences       prefs.Store
	reports           reports.Store
	verifier          *auth.Verifier
	enableCompetition bool
	webhook           *webhook
	reportLimiter     *rate.Limiter
	log               zerolog.Logger
}

// New validates the options and builds the handler set.
func New(opts Options) (*HandlerSet, error) {
	if opts.Manager == nil || opts.Launcher == nil || opts.Roster == nil ||
		opts.Engine == nil || opts.Preferences == nil || opts.Reports == nil ||
		opts.Verifier == nil {
		return nil, errors.New("httpapi: missing collaborator")
	}
	if opts.ReportWindow <= 0 {
		opts.ReportWindow = time.Minute
	}
	if opts.ReportBurst <= 0 {
		opts.ReportBurst = 3
	}
	log := logging.Component("httpapi")
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &HandlerSet{
		manager:           opts.Manager,
		launcher:          opts.Launcher,
		roster:            opts.Roster,
		engine:            opts.Engine,
		preferences:       opts.Preferences,
		reports:           opts.Reports,
		verifier:          opts.Verifier,
		enableCompetition: opts.EnableCompetition,
		webhook:           newWebhook(opts.WebhookURL, log),
		reportLimiter:     rate.NewLimiter(rate.Every(opts.ReportWindow/time.Duration(opts.ReportBurst)), opts.ReportBurst),
		log:               log,
	}, nil
}

// Router builds the full route table.
func (h *HandlerSet) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.observe)

	r.HandleFunc("/sessions", h.listSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/own", h.createOwnSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", h.getSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", h.stopSession).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/preference", h.getPreference).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/preference", h.setPreference).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/{n:[0-9]+}/ws", h.terminal)
	r.HandleFunc("/sessions/{id}/{n:[0-9]+}/restart", h.restartGame).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/{n:[0-9]+}/report", h.reportGame).Methods(http.MethodPost)

	r.HandleFunc("/leaderboard", h.leaderboard).Methods(http.MethodGet)

	r.HandleFunc("/game", h.listGameFiles).Methods(http.MethodGet)
	r.HandleFunc("/game", h.addGameFile).Methods(http.MethodPost)
	r.HandleFunc("/game/meta", h.gameMetadata).Methods(http.MethodGet)
	r.HandleFunc("/game/build", h.buildGame).Methods(http.MethodPost)
	r.HandleFunc("/game/{filename:.+}", h.removeGameFile).Methods(http.MethodDelete)

	r.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/stats/{team}", h.adminStats).Methods(http.MethodGet)
	r.HandleFunc("/allstats", h.adminAllStats).Methods(http.MethodGet)
	r.HandleFunc("/allstats.csv", h.adminAllStatsCSV).Methods(http.MethodGet)

	r.HandleFunc("/reports/{team}", h.adminReports).Methods(http.MethodGet)
	r.HandleFunc("/admin/game/{team}", h.adminListGameFiles).Methods(http.MethodGet)
	r.HandleFunc("/admin/game/{team}/meta", h.adminGameMetadata).Methods(http.MethodGet)
	r.HandleFunc("/admin/game/{team}/{filename:.+}", h.adminRemoveGameFile).Methods(http.MethodDelete)
	r.HandleFunc("/admin/exclude/{team}", h.adminExclude).Methods(http.MethodPost)
	r.HandleFunc("/admin/include/{team}", h.adminInclude).Methods(http.MethodPost)
	r.HandleFunc("/admin/excluded", h.adminExcluded).Methods(http.MethodGet)
	r.HandleFunc("/admin/history", h.adminHistory).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

// observe logs every request and feeds the latency histogram.
func (h *HandlerSet) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		elapsed := time.Since(start)
		metrics.RequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
		h.log.Debug().Str("route", route).Str("method", r.Method).Dur("elapsed", elapsed).Msg("request")
	})
}

// identify authenticates the bearer token on a plain HTTP request.
func (h *HandlerSet) identify(r *http.Request) (auth.Identity, error) {
	return h.verifier.Verify(r.Header.Get("Authorization"))
}

// requireAdmin authenticates and rejects non-admins.
func (h *HandlerSet) requireAdmin(r *http.Request) (auth.Identity, error) {
	identity, err := h.identify(r)
	if err != nil {
		return auth.Identity{}, err
	}
	if !identity.Admin {
		return auth.Identity{}, fault.ErrForbidden
	}
	return identity, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrAuthRequired), errors.Is(err, fault.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, fault.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fault.ErrRuntimeUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (h *HandlerSet) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

func readJSON(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fault.Invalidf("request body: %v", err)
	}
	return nil
}
