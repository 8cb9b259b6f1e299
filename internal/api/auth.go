package api

import (
	"crypto/subtle"
	"net/http"
)

// RequireStaff enforces HTTP Basic auth on dashboard reads. The check is
// skipped while no staff user is configured, matching the prototype
// deployments that run without credentials.
func (app *App) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.Config.StaffUser == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="TrashTrack"`)
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(app.Config.StaffUser)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(app.Config.StaffPass)) == 1
		if !userOK || !passOK {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireDevice checks the X-Device-Secret header on ingestion endpoints.
// Skipped while no secret is configured.
func (app *App) RequireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.Config.DeviceSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		secret := r.Header.Get("X-Device-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(app.Config.DeviceSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "Invalid or missing device secret")
			return
		}

		next.ServeHTTP(w, r)
	})
}
