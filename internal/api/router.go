package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/yegors/adsb-tracker/internal/metrics"
)

// API request budget shared by all clients
const (
	apiRequestsPerSecond = 100
	apiBurst             = 200
)

// Router wires handlers into a chi router
type Router struct {
	handler     *Handler
	ws          http.HandlerFunc
	static      http.Handler
	metricsPath string
}

// NewRouter creates the router. static may be nil and metricsPath empty to
// disable those routes.
func NewRouter(handler *Handler, ws http.HandlerFunc, static http.Handler, metricsPath string) *Router {
	return &Router{
		handler:     handler,
		ws:          ws,
		static:      static,
		metricsPath: metricsPath,
	}
}

// Routes builds the HTTP handler tree
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(instrument)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(apiRequestsPerSecond), apiBurst)))

		r.Get("/stats", rt.handler.GetStats)
		r.Get("/health", rt.handler.GetHealth)
		r.Post("/control/reset", rt.handler.ResetPlayback)
		r.Get("/trail/{hex}", rt.handler.GetTrail)
		r.Get("/trails", rt.handler.GetActiveTrails)
		r.Get("/airports", rt.handler.GetAirports)
		r.Get("/nearest-airport/{hex}", rt.handler.GetNearestAirport)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusNotFound, map[string]any{"error": "Endpoint not found"})
		})
	})

	if rt.ws != nil {
		r.Get("/ws", rt.ws)
	}
	if rt.metricsPath != "" {
		r.Handle(rt.metricsPath, promhttp.Handler())
	}
	if rt.static != nil {
		r.Handle("/*", rt.static)
	}

	return r
}

// rateLimit rejects requests once the shared budget is spent
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"code":    "rate_limit_exceeded",
					"message": "Too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// instrument records request durations by route pattern
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
