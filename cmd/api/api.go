package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rota27/refinado/internal/forecast"
	"github.com/rota27/refinado/internal/graph"
	"github.com/rota27/refinado/internal/logger"
	"github.com/rota27/refinado/internal/store"
)

type application struct {
	config   config
	forecast *forecast.Service
	cache    *graph.DocumentCache
	store    *store.Storage
	sessions *sessionStore
	logger   *logger.Logger
}

type config struct {
	addr     string
	logLevel string
	auth     authConfig
	graph    graph.Config
	db       dbConfig
}

type authConfig struct {
	managerPassword string
	adminPassword   string
}

type dbConfig struct {
	addr         string
	maxOpenConns int
	maxIdleConns int
	maxIdleTime  string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped.
	r.Use(middleware.Timeout(120 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)
		r.Post("/auth/login", app.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(app.requireAuth)

			r.Route("/forecast", func(r chi.Router) {
				r.Get("/active", app.handleGetActiveWeek)
				r.Get("/grid", app.handleGetEditorGrid)
				r.Get("/base", app.handleGetBaseRows)
				r.Get("/summary", app.handleGetSummary)
				r.Get("/export", app.handleExportCSV)
				r.Post("/edits", app.handleApplyEdits)
			})
			r.Get("/history", app.handleGetHistory)

			r.Route("/admin", func(r chi.Router) {
				r.Use(app.requireAdmin)
				r.Get("/users", app.handleGetUsers)
				r.Get("/audit", app.handleGetAuditMirror)
				r.Post("/revisions", app.handleRollover)
				r.Put("/months", app.handleSetPermittedMonths)
				r.Post("/refined", app.handlePublishRefined)
				r.Post("/cache/clear", app.handleClearCache)
			})
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 120,
		ReadTimeout:  time.Second * 40,
		IdleTimeout:  time.Minute,
	}

	app.logger.Info("Server", "Listening on %s", app.config.addr)
	return srv.ListenAndServe()
}
