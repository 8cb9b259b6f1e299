package api

import (
	"net/http"
	"os"
	"path/filepath"
)

// SPAHandler serves the built dashboard with an index.html fallback so
// client-side routes still resolve after a refresh. Responds 404 when the
// build directory does not exist.
func SPAHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if staticDir == "" {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			path = filepath.Join(staticDir, "index.html")
		}
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, path)
	}
}
