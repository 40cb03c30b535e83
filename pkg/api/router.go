// Package api provides the Octopus HTTP server and router.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/api/handlers"
	apiMiddleware "github.com/octopus-bim/octopus/pkg/api/middleware"
	"github.com/octopus-bim/octopus/pkg/auth"
	"github.com/octopus-bim/octopus/pkg/bim"
	"github.com/octopus-bim/octopus/pkg/oauth"
	"github.com/octopus-bim/octopus/pkg/processing"
	"github.com/octopus-bim/octopus/pkg/registry"
	"github.com/octopus-bim/octopus/pkg/store"
)

// RouterDeps carries the wired services the router exposes.
type RouterDeps struct {
	Store    store.Store
	Authz    *auth.Authorizer
	Tokens   *auth.TokenService
	Registry *registry.Service
	BIM      *bim.Service
	OAuth    *oauth.Service
	Bus      *processing.Bus

	// AuthMode selects development or oidc authentication.
	AuthMode string
	// DevPrincipal is the fixed principal used in development mode.
	DevPrincipal *auth.Principal

	RequestTimeout time.Duration
	MaxUploadBytes int64

	// ReadinessChecks are probed by /health/ready.
	ReadinessChecks map[string]handlers.ReadinessCheck
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET /health, /health/ready - probes
//   - GET /metrics - Prometheus metrics
//   - GET /oauth/authorize, POST /oauth/token - OAuth2 server
//   - /api/v1/workspaces/* - workspaces, projects, members, apps
//   - /api/v1/projects/* - files, upload sessions, models
//   - /api/v1/files/*, /api/v1/models/*, /api/v1/modelversions/*
//   - GET /api/v1/usage/workspaces/{id} - storage usage
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	base := handlers.Base{Store: deps.Store, Authz: deps.Authz}

	healthHandler := handlers.NewHealthHandler(deps.ReadinessChecks)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Live)
		r.Get("/ready", healthHandler.Ready)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	authenticate := apiMiddleware.Authenticator(deps.AuthMode, deps.DevPrincipal, deps.Tokens, deps.Authz)

	// OAuth2 server. The authorization endpoint needs the resource owner's
	// identity; the token endpoint authenticates the client via the form.
	oauthHandler := handlers.NewOAuthHandler(base, deps.OAuth)
	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/oauth/authorize", oauthHandler.Authorize)
	})
	r.Post("/oauth/token", oauthHandler.Token)

	workspaceHandler := handlers.NewWorkspaceHandler(base, deps.Registry)
	projectHandler := handlers.NewProjectHandler(base)
	appHandler := handlers.NewAppHandler(base, deps.OAuth)
	uploadHandler := handlers.NewUploadHandler(base, deps.Registry, deps.MaxUploadBytes)
	fileHandler := handlers.NewFileHandler(base, deps.Registry)
	modelHandler := handlers.NewModelHandler(base, deps.BIM, deps.Bus)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(scopeByMethod)

		r.Route("/workspaces", func(r chi.Router) {
			r.Post("/", workspaceHandler.Create)
			r.Get("/", workspaceHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", workspaceHandler.Get)
				r.Put("/", workspaceHandler.Update)
				r.Post("/members", workspaceHandler.AddMember)

				r.Post("/projects", projectHandler.Create)
				r.Get("/projects", projectHandler.List)

				r.Post("/apps", appHandler.Register)
				r.Get("/apps", appHandler.List)
			})
		})

		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", projectHandler.Get)
			r.Post("/members", projectHandler.AddMember)

			r.Route("/files", func(r chi.Router) {
				r.Get("/", fileHandler.List)
				r.Post("/reserve", uploadHandler.Reserve)
				r.Route("/sessions/{sid}", func(r chi.Router) {
					r.Get("/", uploadHandler.GetSession)
					r.Post("/content", uploadHandler.Content)
					r.Post("/commit", uploadHandler.Commit)
				})
			})

			r.Post("/models", modelHandler.Create)
			r.Get("/models", modelHandler.List)
		})

		r.Route("/files/{id}", func(r chi.Router) {
			r.Get("/", fileHandler.Get)
			r.Get("/content", fileHandler.Content)
			r.Delete("/", fileHandler.Delete)
		})

		r.Route("/models/{id}/versions", func(r chi.Router) {
			r.Post("/", modelHandler.CreateVersion)
			r.Get("/", modelHandler.ListVersions)
		})

		r.Route("/modelversions/{id}", func(r chi.Router) {
			r.Get("/", modelHandler.GetVersion)
			r.Get("/wexbim", modelHandler.WexBim)
			r.Get("/properties", modelHandler.Properties)
			r.Get("/progress", modelHandler.Progress)
		})

		r.Get("/usage/workspaces/{id}", workspaceHandler.Usage)
	})

	// The request timeout excludes the streaming endpoints; uploads,
	// downloads and the SSE stream run as long as the connection lives.
	if deps.RequestTimeout > 0 {
		return timeoutExceptStreams(deps.RequestTimeout)(r)
	}
	return r
}

// scopeByMethod maps the HTTP method onto the required token scope:
// reads need the read scope, everything else the write scope.
func scopeByMethod(next http.Handler) http.Handler {
	requireRead := apiMiddleware.RequireScope(auth.ScopeRead)(next)
	requireWrite := apiMiddleware.RequireScope(auth.ScopeWrite)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			requireRead.ServeHTTP(w, r)
		default:
			requireWrite.ServeHTTP(w, r)
		}
	})
}

// isStreamPath reports whether the path serves a long-lived body.
func isStreamPath(path string) bool {
	return strings.HasSuffix(path, "/content") ||
		strings.HasSuffix(path, "/wexbim") ||
		strings.HasSuffix(path, "/progress")
}

func timeoutExceptStreams(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		withTimeout := middleware.Timeout(d)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isStreamPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			withTimeout.ServeHTTP(w, r)
		})
	}
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/") || path == "/metrics"
}

// requestLogger logs request start at DEBUG and completion at INFO, with
// health and metrics probes kept at DEBUG to reduce noise.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
