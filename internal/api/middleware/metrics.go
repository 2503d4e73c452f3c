// metrics.go — Prometheus HTTP метрики Film Rental.
// Регистрирует метрики: fr_http_requests_total, fr_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики Film Rental
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fr_http_requests_total",
			Help: "Общее количество HTTP-запросов к Film Rental",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	// Верхние бакеты покрывают ожидание подтверждения оплаты.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fr_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Film Rental в секундах",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет идентификаторы в пути на {id}.
// /api/films/42 → /api/films/{id}
// /api/films/update/42 → /api/films/update/{id}
// /api/payments/<uuid>/submit → /api/payments/{id}/submit
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/films/update/"):
		return "/api/films/update/{id}"
	case strings.HasPrefix(path, "/api/films/"):
		rest := strings.TrimPrefix(path, "/api/films/")
		if rest == "add" || rest == "delete" {
			return path
		}
		return "/api/films/{id}"
	case strings.HasPrefix(path, "/api/payments/"):
		rest := strings.TrimPrefix(path, "/api/payments/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/api/payments/{id}" + rest[i:]
		}
		return "/api/payments/{id}"
	}
	return path
}
