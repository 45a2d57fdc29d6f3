package middleware

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/junctree/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// MetricsCollector counts requests and errors for /stats and feeds the
// Prometheus HTTP metrics.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	http         *metrics.HTTP
}

func NewMetricsCollector(requestCount, errorCount *atomic.Int64, m *metrics.HTTP) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
		http:         m,
	}
}

func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}
		mc.http.Observe(routePattern(r), r.Method, strconv.Itoa(rw.statusCode), time.Since(start))
	})
}

// routePattern is the matched chi pattern, so that IDs do not explode the
// label space.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
