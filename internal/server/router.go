package server

import (
	"net/http"

	"github.com/bunbase/bunbase/internal/auth"
	"github.com/bunbase/bunbase/internal/files"
	"github.com/bunbase/bunbase/internal/hooks"
	"github.com/bunbase/bunbase/internal/realtime"
	"github.com/bunbase/bunbase/internal/records"
	"github.com/bunbase/bunbase/internal/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/uptrace/bun"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RequestContext is handed to custom route handlers. It exposes the
// request, the path parameters, and the same services the built-in
// handlers use.
type RequestContext struct {
	Request  *http.Request
	Params   func(name string) string
	DB       *bun.DB
	Schema   *schema.Registry
	Records  *records.Service
	Auth     *auth.Resolver
	Hooks    *hooks.Registry
	Realtime *realtime.Hub
	Files    *files.Store
}

// CustomRoute is an externally supplied route. Routes are merged after
// the built-ins and before the admin UI catch-all; handlers are wrapped
// by the same error mapper as the built-in handlers.
type CustomRoute struct {
	Method  string
	Pattern string
	Handler func(w http.ResponseWriter, ctx *RequestContext) error
}

// RouterOptions controls the construction of the HTTP router. The zero
// value of every optional field falls back to a sensible default.
type RouterOptions struct {
	App           *App
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	CustomRoutes  []CustomRoute
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the permissive policy the embedded admin
// UI and browser SDKs expect.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy,
// and the built-in API and admin handlers mounted.
func NewRouter(opts RouterOptions) chi.Router {
	app := opts.App

	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	// Apply custom middleware passed from the caller.
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/collections/{name}", func(r chi.Router) {
			r.Post("/auth-with-password", app.handleAuthWithPassword)
			r.Route("/records", func(r chi.Router) {
				r.Get("/", app.handleListRecords)
				r.Post("/", app.handleCreateRecord)
				r.Get("/{id}", app.handleGetRecord)
				r.Patch("/{id}", app.handleUpdateRecord)
				r.Delete("/{id}", app.handleDeleteRecord)
			})
		})
		r.Get("/files/{collection}/{id}/{filename}", app.handleDownloadFile)
		r.Get("/realtime", app.handleRealtimeConnect)
		r.Post("/realtime", app.handleRealtimeSubscribe)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/auth/login", app.handleAdminLogin)
		r.Get("/auth/me", app.handleAdminMe)
		r.Post("/auth/password", app.handleAdminPassword)
		r.Route("/collections", func(r chi.Router) {
			r.Get("/", app.handleListCollections)
			r.Post("/", app.handleCreateCollection)
			r.Get("/{name}", app.handleGetCollection)
			r.Patch("/{name}", app.handleUpdateCollection)
			r.Delete("/{name}", app.handleDeleteCollection)
			r.Post("/{name}/fields", app.handleAddField)
			r.Patch("/{name}/fields/{field}", app.handleUpdateField)
			r.Delete("/{name}/fields/{field}", app.handleRemoveField)
		})
	})

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	// External custom routes, merged before the admin UI catch-all.
	for _, route := range opts.CustomRoutes {
		r.Method(route.Method, route.Pattern, app.wrapCustomRoute(route))
	}

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	r.Get("/_", handleAdminUI)
	r.Get("/_/*", handleAdminUI)

	return r
}

// NewH2CHandler wraps the router with an h2c server so HTTP/2 works
// over cleartext during development.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}

// wrapCustomRoute adapts an external handler to the error mapper and
// builds its RequestContext.
func (a *App) wrapCustomRoute(route CustomRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := &RequestContext{
			Request:  r,
			Params:   func(name string) string { return chi.URLParam(r, name) },
			DB:       a.DB,
			Schema:   a.Registry,
			Records:  a.Records,
			Auth:     a.Auth,
			Hooks:    a.Hooks,
			Realtime: a.Hub,
			Files:    a.Files,
		}
		if err := route.Handler(w, ctx); err != nil {
			a.writeError(w, err)
		}
	}
}

// handleAdminUI serves the placeholder page where the admin UI bundle
// mounts.
func handleAdminUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<!doctype html><title>bunbase</title><h1>bunbase</h1><p>The admin API is served under /admin.</p>"))
}
