// Package telemetry содержит метрики Prometheus сервиса маркетплейса.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics содержит счётчики и гистограммы сервиса.
type Metrics struct {
	Requests        *prometheus.CounterVec
	LatencyMS       *prometheus.HistogramVec
	OrdersSubmitted prometheus.Counter
	OrdersCanceled  prometheus.Counter
}

// NewMetrics регистрирует метрики сервиса в указанном реестре.
// При nil используется реестр по умолчанию.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "market",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "market",
			Name:      "orders_submitted_total",
			Help:      "Total number of submitted orders.",
		}),
		OrdersCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "market",
			Name:      "orders_canceled_total",
			Help:      "Total number of canceled orders.",
		}),
	}

	reg.MustRegister(m.Requests, m.LatencyMS, m.OrdersSubmitted, m.OrdersCanceled)
	return m
}

// Handler возвращает HTTP-обработчик эндпоинта /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware инструментирует HTTP-запросы: счётчик по обработчику и статусу
// и гистограмма задержки. Обработчик помечается шаблоном маршрута,
// а не сырым путём, чтобы не раздувать кардинальность метрик.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		pattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			pattern = rctx.RoutePattern()
		}
		if pattern == "" {
			pattern = "unmatched"
		}
		label := r.Method + " " + pattern

		m.Requests.WithLabelValues(label, strconv.Itoa(sw.status)).Inc()
		m.LatencyMS.WithLabelValues(label).Observe(float64(time.Since(start).Milliseconds()))
	})
}
