package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/statement-parser/pkg/middleware"
	"github.com/FACorreiaa/statement-parser/pkg/observability"
)

// SetupRouter configures all routes and returns the HTTP handler
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	registerAPIRoutes(mux, deps)
	registerUtilityRoutes(mux, deps)

	tracer := otel.GetTracerProvider().Tracer("statement-parser/api")

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID("X-Request-ID"),
		middleware.Tracing(tracer),
	}
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		mws = append(mws, middleware.RateLimit(limiter))
	}
	mws = append(mws,
		middleware.Recovery(deps.Logger),
		middleware.Logging(deps.Logger),
		observability.NewMetricsMiddleware(),
	)

	handler := middleware.Chain(mux, mws...)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // narrow to the email-ingestion host in prod
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           7200,
	})

	return corsHandler.Handler(handler)
}

// registerAPIRoutes registers the v1 API surface
func registerAPIRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("POST /v1/upload", deps.StatementHandler.Upload)
	mux.HandleFunc("POST /v1/file-credentials", deps.StatementHandler.FileCredentials)
	mux.HandleFunc("GET /v1/tasks/{id}", deps.StatementHandler.TaskStatus)
	mux.HandleFunc("POST /v1/rule-engine", deps.RuleHandler.RunRuleEngine)

	deps.Logger.Info("registered API routes",
		"paths", []string{"/v1/upload", "/v1/file-credentials", "/v1/tasks/{id}", "/v1/rule-engine"})
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := deps.DB.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, writeErr := w.Write([]byte("database unhealthy")); writeErr != nil {
				deps.Logger.Error("failed to write health response", slog.Any("error", writeErr))
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			deps.Logger.Error("failed to write health response", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered health check", "path", "/health")

	// Extended health with details on dependencies/env
	mux.HandleFunc("/health/details", func(w http.ResponseWriter, _ *http.Request) {
		type status struct {
			Status string `json:"status"`
			Detail string `json:"detail,omitempty"`
		}
		result := map[string]status{
			"db":    {Status: "ok"},
			"env":   {Status: "ok"},
			"ready": {Status: "ok"},
		}

		if err := deps.DB.Health(); err != nil {
			result["db"] = status{Status: "fail", Detail: err.Error()}
			result["ready"] = status{Status: "fail", Detail: "db unavailable"}
		}

		if os.Getenv("FERNET_KEY") == "" {
			result["env"] = status{Status: "warn", Detail: "FERNET_KEY missing"}
		}

		for _, v := range result {
			if v.Status == "fail" {
				w.WriteHeader(http.StatusServiceUnavailable)
				if err := json.NewEncoder(w).Encode(result); err != nil {
					deps.Logger.Error("failed to encode health details", slog.Any("error", err))
				}
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			deps.Logger.Error("failed to encode health details", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered health details", "path", "/health/details")

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			deps.Logger.Error("failed to write readiness response", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered readiness check", "path", "/ready")

	// Metrics endpoint (Prometheus)
	if deps.Config.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}
