package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// ProgressSource reports the current progress of one named pipe in a
// pipeline.
type ProgressSource interface {
	Name() string
	Progress() float64
}

// progressEntry is the JSON shape served at /progress.
type progressEntry struct {
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
}

// NewProgressRouter builds a minimal debug HTTP surface exposing every
// source's current Progress() as JSON at GET /progress. This is not the
// full monitoring tree a production system would carry; it is a single
// flat endpoint, and the pipecraft CLI does not serve it.
func NewProgressRouter(sources ...ProgressSource) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/progress", func(w http.ResponseWriter, req *http.Request) {
		entries := make([]progressEntry, 0, len(sources))
		for _, s := range sources {
			entries = append(entries, progressEntry{Name: s.Name(), Progress: s.Progress()})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			log.Error().Err(err).Msg("[monitor] failed to encode progress response")
		}
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("[monitor] handled request")
	})
}
