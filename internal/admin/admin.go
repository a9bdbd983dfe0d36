// Package admin builds the operator-facing HTTP surface mounted
// alongside the QUIC game port: health checks, Prometheus metrics, Go
// pprof profiles, and a tiny JSON snapshot of controller counters.
package admin

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spacelock/internal/netcode/server"
)

// StatsProvider is the subset of *server.Controller the admin surface
// depends on, kept as an interface so the router can be exercised with
// httptest against a fake controller.
type StatsProvider interface {
	Stats() server.Stats
	CommandLog() server.CommandLogStats
}

// Config controls which parts of the admin surface are mounted.
type Config struct {
	// EnablePprof exposes /debug/pprof/*. Callers should bind the admin
	// listener to a private address when enabling it.
	EnablePprof bool
}

// NewRouter builds the admin HTTP handler. addr is not bound here —
// the caller decides how (and where) to listen.
func NewRouter(stats StatsProvider, cfg Config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/debug/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats.Stats())
	})

	r.Get("/debug/commandlog", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats.CommandLog())
	})

	if cfg.EnablePprof {
		r.Route("/debug/pprof", func(r chi.Router) {
			r.Get("/", pprof.Index)
			r.Get("/cmdline", pprof.Cmdline)
			r.Get("/profile", pprof.Profile)
			r.Get("/symbol", pprof.Symbol)
			r.Get("/trace", pprof.Trace)
		})
	}

	return r
}
