/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     zerolog request log and HTTP metrics
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend
  6. Verifier + Authenticator on /api: HS256 bearer token, claim user_id

ROUTE GROUPS:
  /api/requests/*       Submit, read, decide, cancel
  /api/me/*             The caller's requests and balances
  /api/approvals/*      Requests waiting on the caller
  /api/teams/*          Team absence calendar
  /healthz              Liveness
  /metrics              Prometheus (when enabled)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification and the actor identity
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/warp/leave-engine/logger"
	"github.com/warp/leave-engine/metrics"
)

// RouterOptions configures the outer surface of the router.
type RouterOptions struct {
	TokenAuth   *jwtauth.JWTAuth
	CORSOrigins []string
	MetricsPath string // empty disables the metrics endpoint
	Logger      *logger.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.Component("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(jwtauth.Verifier(opts.TokenAuth))
		r.Use(authenticator)

		// Request lifecycle routes
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.SubmitRequest)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		// Caller routes
		r.Route("/me", func(r chi.Router) {
			r.Get("/requests", h.ListMyRequests)
			r.Get("/balances", h.ListMyBalances)
		})

		r.Get("/approvals/pending", h.ListPendingApprovals)
		r.Get("/teams/{id}/absences", h.GetTeamAbsences)
	})

	return r
}
