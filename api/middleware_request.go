package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/linesmerrill/commute-permit-api/logging"
)

// RequestIDHeader carries the request id back to the client
const RequestIDHeader = "X-Request-ID"

// RequestMiddleware gives every request an id and a scoped logger, and
// records its timing in metrics when metrics is not nil
func RequestMiddleware(metrics *MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, requestID)

			start := time.Now()
			trace := &RequestTrace{RequestID: requestID, Method: r.Method, Path: r.URL.Path, StartTime: start}
			logger := logging.New().With("requestId", requestID)
			ctx := logging.WithLogger(r.Context(), logger)
			ctx = WithRequestTrace(ctx, trace)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			trace.TotalDuration = time.Since(start)
			trace.Status = rw.statusCode
			if metrics != nil && r.URL.Path != "/health" {
				metrics.RecordTrace(*trace)
			}
			if trace.TotalDuration > time.Second {
				logger.Warnw("slow request",
					"method", r.Method,
					"path", r.URL.Path,
					"duration", trace.TotalDuration,
					"status", rw.statusCode,
					"storeOps", len(trace.StoreOps),
					"storeTime", trace.StoreTime,
				)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
// It implements http.Hijacker to support WebSocket upgrades
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker to support WebSocket upgrades
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}
