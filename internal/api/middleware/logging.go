package middleware

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"polytrade/pkg/utils"
)

// RequestIDHeader - заголовок идентификатора запроса
const RequestIDHeader = "X-Request-ID"

// httpRequestDuration - длительность запросов по шаблону маршрута
var httpRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "polytrade",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route and status",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// responseWriter запоминает статус и размер ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Hijack нужен для upgrade /ws/stream
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Logging - middleware для логирования HTTP запросов через zap
//
// Пишет метод, путь, статус, длительность, размер ответа и request id.
// Request id берётся из X-Request-ID или генерируется и возвращается клиенту.
// Длительность также попадает в гистограмму polytrade_http_request_duration_seconds.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		httpRequestDuration.
			WithLabelValues(r.Method, routeTemplate(r), strconv.Itoa(wrapped.statusCode)).
			Observe(duration.Seconds())

		fields := []zap.Field{
			utils.RequestID(requestID),
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.Int("status", wrapped.statusCode),
			utils.Latency(duration),
			utils.String("remote", r.RemoteAddr),
			utils.Int64("bytes", wrapped.written),
		}

		switch {
		case wrapped.statusCode >= 500:
			utils.L().Error("http request", fields...)
		case wrapped.statusCode >= 400:
			utils.L().Warn("http request", fields...)
		default:
			utils.L().Debug("http request", fields...)
		}
	})
}

// routeTemplate - шаблон маршрута mux, чтобы id не раздували метки
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}
