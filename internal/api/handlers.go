package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/trashtrack/trashtrack/internal/config"
	"github.com/trashtrack/trashtrack/internal/models"
	"github.com/trashtrack/trashtrack/internal/session"
	"github.com/trashtrack/trashtrack/internal/validation"
)

type App struct {
	Sessions *session.Service
	Config   *config.Config
	Log      zerolog.Logger
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// StartSessionHandler creates a new active session. The body is optional:
// {"name": ..., "meal_type": ...}.
func (app *App) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     *string `json:"name"`
		MealType *string `json:"meal_type"`
	}
	// An empty body means "no labels"; anything else malformed is a client
	// error.
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	sess, err := app.Sessions.Start(r.Context(), body.Name, body.MealType)
	if err != nil {
		app.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":     "started",
		"session_id": sess.SessionID,
		"start_time": sess.StartTime,
		"name":       sess.Name,
		"meal_type":  sess.MealType,
	})
}

// StopSessionHandler closes an active session. Stopping twice is an error,
// not a no-op.
func (app *App) StopSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	endTime, durationSec, err := app.Sessions.Stop(r.Context(), sessionID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusBadRequest, "Session already stopped")
		return
	case err != nil:
		app.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "stopped",
		"session_id":   sessionID,
		"end_time":     endTime,
		"duration_sec": durationSec,
	})
}

// AddDetectionsHandler appends detection rows to an open session.
func (app *App) AddDetectionsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body struct {
		Results []models.DetectionResult `json:"results"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	total, err := app.Sessions.AppendDetections(r.Context(), sessionID, body.Results)
	switch {
	case errors.Is(err, session.ErrNoResults):
		writeError(w, http.StatusBadRequest, "results array is required and must not be empty")
		return
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusBadRequest, "Session is already stopped")
		return
	case err != nil:
		app.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":           "accepted",
		"session_id":       sessionID,
		"new_detections":   len(body.Results),
		"total_detections": total,
	})
}

// IngestSessionHandler receives a complete session payload from the device,
// validates it, and upserts it idempotently by session_id.
func (app *App) IngestSessionHandler(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if errs := validation.ValidateSessionPayload(body); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "Validation failed", errs...)
		return
	}

	payload := validation.ParseSessionPayload(body)
	if err := app.Sessions.Ingest(r.Context(), payload); err != nil {
		app.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":     "accepted",
		"session_id": payload.SessionID,
	})
}

// ListSessionsHandler returns a page of sessions, most recent first.
func (app *App) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	page, err := app.Sessions.List(r.Context(), limit, offset)
	if err != nil {
		app.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (app *App) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	detail, err := app.Sessions.Get(r.Context(), sessionID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
		return
	case err != nil:
		app.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ActiveSessionHandler returns the open session the device polls for.
func (app *App) ActiveSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.Sessions.Active(r.Context())
	if err != nil {
		app.serverError(w, err)
		return
	}

	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": false, "session": nil})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active": true,
		"session": map[string]any{
			"session_id": sess.SessionID,
			"device_id":  sess.DeviceID,
			"start_time": sess.StartTime,
			"summary":    sess.Summary,
			"created_at": sess.CreatedAt,
		},
	})
}

func (app *App) serverError(w http.ResponseWriter, err error) {
	app.Log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
