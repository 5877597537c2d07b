package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "z_tutor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "z_tutor_turns_total",
			Help: "Finished conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	TurnLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "z_tutor_turn_latency_seconds",
			Help:    "Latency from accepting a message to finalizing the turn",
			Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
		},
	)

	GenerationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "z_tutor_generation_attempts_total",
			Help: "Provider attempts by provider and result",
		},
		[]string{"provider", "result"},
	)

	SynthesisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "z_tutor_synthesis_total",
			Help: "Speech synthesis requests by result",
		},
		[]string{"result"},
	)

	DroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "z_tutor_dropped_events_total",
			Help: "Advisory events dropped under backpressure",
		},
		[]string{"event"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "z_tutor_active_sessions",
			Help: "Number of sessions with a connected client",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "z_tutor_store_errors_total",
			Help: "Session store failures by operation",
		},
		[]string{"op"},
	)
)

// Instrument counts requests by chi route pattern so path parameters do not
// explode label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
		RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
