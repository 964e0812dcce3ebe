// Package api exposes the daemon's REST surface: JSON over HTTP with a
// JWT bearer carrying the user id. Every endpoint is a thin translation
// layer over the core services; no business rules live here.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/analytics"
	"github.com/timesheet-app/timesheet/internal/log"
	"github.com/timesheet-app/timesheet/internal/mnemonic"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
	"github.com/timesheet-app/timesheet/internal/tracking"
)

// Server wires the core services to HTTP.
type Server struct {
	store     *sqlite.Store
	tracking  *tracking.Service
	analytics *analytics.Service
	mnemonics *mnemonic.Service
	tokens    *TokenIssuer

	corsOrigins []string
	rateLimit   int
	logger      zerolog.Logger
}

// Options tunes the transport layer.
type Options struct {
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

// NewServer builds the REST server over the given services.
func NewServer(
	store *sqlite.Store,
	trackingSvc *tracking.Service,
	analyticsSvc *analytics.Service,
	mnemonicSvc *mnemonic.Service,
	tokens *TokenIssuer,
	opts Options,
) *Server {
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 60
	}
	return &Server{
		store:       store,
		tracking:    trackingSvc,
		analytics:   analyticsSvc,
		mnemonics:   mnemonicSvc,
		tokens:      tokens,
		corsOrigins: opts.CORSAllowedOrigins,
		rateLimit:   opts.RateLimitPerMinute,
		logger:      log.WithComponent("api"),
	}
}

// Router assembles the middleware chain and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(requestID)
	r.Use(cors(s.corsOrigins))
	r.Use(observe)
	r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Post("/tracking/toggle", s.handleToggle)
			r.Get("/tracking/status", s.handleStatus)

			r.Get("/entries", s.handleListEntries)
			r.Patch("/entries/{id}", s.handleAdjustEntry)
			r.Delete("/entries/{id}", s.handleDeleteEntry)

			r.Get("/analytics/daily", s.handleDaily)
			r.Get("/analytics/stats", s.handleStats)
			r.Get("/analytics/patterns", s.handlePatterns)
			r.Get("/analytics/chart", s.handleChart)
			r.Get("/analytics/compliance", s.handleComplianceReport)

			r.Get("/settings", s.handleGetSettings)
			r.Patch("/settings", s.handleUpdateSettings)

			r.Get("/employer-attendance", s.handleEmployerRecords)
			r.Put("/employer-attendance", s.handleEmployerImport)

			r.Get("/compliance/rules", s.handleListRules)
			r.Put("/compliance/rules", s.handleUpsertRule)
			r.Delete("/compliance/rules/{type}", s.handleDeleteRule)

			r.Get("/holidays", s.handleListHolidays)
			r.Post("/holidays", s.handleCreateHoliday)
			r.Delete("/holidays/{id}", s.handleDeleteHoliday)
		})
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
