package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "werewolf_rooms_active",
		Help: "Rooms currently registered in the hub",
	})
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "werewolf_ws_connections",
		Help: "Open websocket connections",
	})
	GamesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "werewolf_games_started_total",
		Help: "Games started by a host",
	})
	GamesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werewolf_games_finished_total",
			Help: "Games that reached a terminal status",
		},
		[]string{"status"},
	)
	PhaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werewolf_phase_transitions_total",
			Help: "Phases entered across all rooms",
		},
		[]string{"phase"},
	)
	RejectedCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werewolf_rejected_commands_total",
			Help: "Inbound events rejected, by error code",
		},
		[]string{"code"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// MustRegister registers every collector. Call once from main.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		RoomsActive,
		Connections,
		GamesStarted,
		GamesFinished,
		PhaseTransitions,
		RejectedCommands,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// Middleware records request counts and latency per chi route pattern, so
// room ids in paths do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: underlying writer cannot hijack")
	}
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
