package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/logger"
	"github.com/oggyb/amora/internal/observability"
	"github.com/oggyb/amora/internal/server/httpx"
)

// NewRouter builds the HTTP API: shared middleware, /healthz and every
// registrar mounted under /v1.
func NewRouter(appCtx *app.AppContext, auth func(http.Handler) http.Handler, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(appCtx.Config.HTTP.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   appCtx.Config.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-Signature"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(requestLogger(appCtx.Logger))

	r.Get("/healthz", healthz(appCtx))

	r.Route("/v1", func(v1 chi.Router) {
		private := v1.With(auth)
		for _, reg := range registrars {
			reg.Register(v1, private)
		}
	})

	return r
}

// requestLogger opens a span, attaches a request-scoped logger and logs
// one line per request.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := observability.Start(r.Context(), r.Method+" "+r.URL.Path,
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			)
			defer span.End()

			reqID := chimiddleware.GetReqID(ctx)
			log := base.With("request_id", reqID)
			if traceID := observability.TraceID(ctx); traceID != "" {
				log = log.With("trace_id", traceID)
			}
			ctx = logger.WithContext(ctx, log)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
			if ww.Status() >= http.StatusInternalServerError {
				span.AddEvent("server error", trace.WithAttributes(attribute.Int("status", ww.Status())))
			}
			log.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				logger.Since(start),
			)
		})
	}
}

func healthz(appCtx *app.AppContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"db": "ok", "redis": "ok"}
		code := http.StatusOK
		if sqlDB, err := appCtx.DB.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
			status["db"] = "down"
			code = http.StatusServiceUnavailable
		}
		if err := appCtx.RedisCache.Ping(r.Context()); err != nil {
			status["redis"] = "down"
			code = http.StatusServiceUnavailable
		}
		httpx.JSON(w, code, status)
	}
}
