package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/logx"
	"github.com/ariefcatur/clickcart-checkout/internal/metrics"
)

var tracer = otel.Tracer("github.com/ariefcatur/clickcart-checkout/internal/httpx")

// NewRouter returns a router with the shared middleware stack, /healthz and
// /metrics. m may be nil.
func NewRouter(log *zap.Logger, m *metrics.Server) *chi.Mux {
	log = logx.OrNop(log)
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(observe(log, m))
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

// observe opens a server span per request, then logs and counts the request
// under its route pattern once the handler is done.
func observe(log *zap.Logger, m *metrics.Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				))
			defer span.End()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(ctx)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			span.SetAttributes(attribute.String("http.route", route), attribute.Int("http.status_code", status))

			elapsed := time.Since(start)
			if m != nil {
				m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
				m.LatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
			}
			log.Info("http request",
				zap.String("method", r.Method), zap.String("route", route), zap.Int("status", status),
				zap.Duration("elapsed", elapsed), zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
