// metrics.go — Prometheus HTTP метрики ALM Extractor.
// Регистрирует метрики: ae_http_requests_total, ae_http_request_duration_seconds.
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

var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ae_http_requests_total",
			Help: "Общее количество HTTP-запросов к ALM Extractor",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ae_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к ALM Extractor в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет динамические сегменты пути на плейсхолдеры,
// чтобы лейблы метрик не росли с количеством сущностей.
// /api/v1/jobs/a1b2... → /api/v1/jobs/{id}
// /api/v1/domains/DEFAULT/projects → /api/v1/domains/{domain}/projects
// /api/v1/attachments/DEFAULT/demo/17 → /api/v1/attachments/{domain}/{project}/{id}
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/auth/login", "/api/v1/auth/logout",
		"/api/v1/domains", "/api/v1/entities",
		"/api/v1/expand", "/api/v1/extract", "/api/v1/jobs":
		return path
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) < 3 || segments[0] != "api" || segments[1] != "v1" {
		return path
	}

	switch segments[2] {
	case "jobs":
		return "/api/v1/jobs/{id}"
	case "domains":
		if len(segments) == 5 && segments[4] == "projects" {
			return "/api/v1/domains/{domain}/projects"
		}
	case "attachments":
		if len(segments) == 6 {
			return "/api/v1/attachments/{domain}/{project}/{id}"
		}
	}

	return path
}
