package app

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes builds the HTTP surface: the chat page, the websocket endpoint, and
// the operational probes.
func (a *App) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return WithRequestLogging(next, a.log)
	})
	r.Use(WithSecurityHeaders)
	r.Use(middleware.Recoverer)

	r.Get("/", a.handleChatPage)
	r.Get("/ws", a.gateway.ServeHTTP)
	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Get("/presence", a.handlePresence)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	return r
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleReadyz reports 503 once shutdown has begun so load balancers stop
// routing new chatters here while open sessions drain.
func (a *App) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !a.ready.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handlePresence(w http.ResponseWriter, _ *http.Request) {
	names := a.roster.Names()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(struct {
		Names []string `json:"names"`
		Count int      `json:"count"`
	}{Names: names, Count: len(names)})
}
