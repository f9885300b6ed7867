// internal/api/http/assets.go
package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-itembank/internal/bank"
	"github.com/mind-engage/mindengage-itembank/internal/storage"
)

// MountAssets serves stored media for the filesystem store. Media URLs are
// embedded in question HTML, so the route is public.
func MountAssets(r chi.Router, objects storage.Reader) {
	// GET /assets/*   -> returns the object at whatever follows /assets/
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")        // everything after /assets/
		key = strings.TrimPrefix(key, "/") // normalize
		rc, ct, err := objects.Get(r.Context(), key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, "bad key: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = io.Copy(w, rc)
	})
}

// EventsSource is the read side of the event log.
type EventsSource func(r *http.Request, limit int) ([]bank.Event, error)

// GET /events?limit=
func ListEventsHandler(src EventsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evs, err := src(r, queryInt(r, "limit", 50, 1, 500))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if evs == nil {
			evs = []bank.Event{}
		}
		writeJSON(w, http.StatusOK, evs)
	}
}
