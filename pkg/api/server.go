// Package api exposes the HTTP surface: authentication, unit and report
// management, embed configuration and the admin endpoints.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/reportgate/reportgate/pkg/audit"
	"github.com/reportgate/reportgate/pkg/embed"
	"github.com/reportgate/reportgate/pkg/entitlement"
	"github.com/reportgate/reportgate/pkg/httputil"
	"github.com/reportgate/reportgate/pkg/identity"
	"github.com/reportgate/reportgate/pkg/links"
	"github.com/reportgate/reportgate/pkg/observability"
	"github.com/reportgate/reportgate/pkg/powerbi"
	"github.com/reportgate/reportgate/pkg/reports"
	"github.com/reportgate/reportgate/pkg/units"
)

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	Users    identity.Service
	Units    units.Service
	Reports  reports.Service
	Links    links.Service
	Logs     audit.Store
	Resolver *entitlement.Resolver
	Broker   *embed.Broker
	Upstream WorkspaceBrowser
	Tokens   *identity.TokenIssuer
	Metrics  *observability.Metrics
	DB       *sql.DB
}

// WorkspaceBrowser is the discovery slice of the Power BI client used by
// the admin sync endpoints.
type WorkspaceBrowser interface {
	Workspaces(ctx context.Context) ([]powerbi.Workspace, error)
	Reports(ctx context.Context, workspaceID string) ([]powerbi.ReportInfo, error)
}

// Server is the HTTP API server.
type Server struct {
	router *mux.Router
	deps   Deps
	logger *logrus.Logger
}

// NewServer creates the server and registers all routes.
func NewServer(deps Deps, logger *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
	)
	return chain(s.router)
}

func (s *Server) registerRoutes() {
	// Registered on the router so the matched path template is available
	// as the metric label.
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()

	authHandlers := newAuthHandlers(s.deps.Users, s.deps.Units, s.deps.Tokens, s.logger)
	authHandlers.registerPublicRoutes(api)

	// Everything below requires a valid access token.
	authed := api.NewRoute().Subrouter()
	authed.Use(AuthMiddleware(s.deps.Tokens, s.deps.Users))
	authHandlers.registerRoutes(authed)

	newUnitHandlers(s.deps.Units, s.deps.Links, s.deps.Reports, s.deps.Resolver, s.logger).registerRoutes(authed)
	newReportHandlers(s.deps.Reports, s.deps.Resolver, s.deps.Broker, s.deps.Metrics, s.logger).registerRoutes(authed)

	admin := authed.NewRoute().Subrouter()
	admin.Use(RequireAdmin)
	newAdminHandlers(s.deps.Users, s.deps.Units, s.deps.Reports, s.deps.Logs, s.logger).registerRoutes(admin)
	newSyncHandlers(s.deps.Reports, s.deps.Upstream, s.logger).registerRoutes(admin)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	httputil.WriteJSON(w, code, status)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Metrics == nil || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		s.deps.Metrics.ObserveRequest(r.Method, route, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
