package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(app.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Device-Secret"},
	}))
	r.Use(noSniff)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.HealthHandler)

		// Device-facing writes.
		r.Group(func(r chi.Router) {
			r.Use(app.RequireDevice)
			r.Post("/sessions", app.IngestSessionHandler)
			r.Post("/sessions/start", app.StartSessionHandler)
			r.Post("/sessions/{sessionID}/stop", app.StopSessionHandler)
			r.Post("/sessions/{sessionID}/detections", app.AddDetectionsHandler)
		})

		// Dashboard reads.
		r.Group(func(r chi.Router) {
			r.Use(app.RequireStaff)
			r.Get("/sessions", app.ListSessionsHandler)
			r.Get("/sessions/active", app.ActiveSessionHandler)
			r.Get("/sessions/{sessionID}", app.GetSessionHandler)
		})
	})

	// Everything else is the dashboard SPA; unknown /api paths stay JSON.
	spa := SPAHandler(app.Config.StaticDir)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, "/api") || req.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		spa(w, req)
	})

	return r
}

func (app *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		app.Log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func noSniff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
