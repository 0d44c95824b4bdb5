package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"timeoff/internal/domain/audit"
	"timeoff/internal/domain/auth"
	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/leave"
	"timeoff/internal/domain/org"
	"timeoff/internal/domain/settings"
	"timeoff/internal/platform/config"
	"timeoff/internal/platform/email"
	"timeoff/internal/platform/kv"
	"timeoff/internal/platform/metrics"
	"timeoff/internal/platform/ratelimit"
	"timeoff/internal/transport/http/api"
	audithandler "timeoff/internal/transport/http/handlers/audit"
	authhandler "timeoff/internal/transport/http/handlers/auth"
	leavehandler "timeoff/internal/transport/http/handlers/leave"
	notificationshandler "timeoff/internal/transport/http/handlers/notifications"
	usershandler "timeoff/internal/transport/http/handlers/users"
	"timeoff/internal/transport/http/middleware"
)

// Deps are the services the HTTP surface needs.
type Deps struct {
	Config     config.Config
	Identities identity.StoreAPI
	Hierarchy  *org.Hierarchy
	Engine     *leave.Engine
	Auth       *auth.Service
	Audit      *audit.Recorder
	Settings   *settings.Service
	Mailer     email.Sender
	Limiter    *ratelimit.Limiter
	KV         kv.Store
	Metrics    *metrics.Collector
	Ready      func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientIP(cfg.TrustProxyHeaders))
	router.Use(middleware.Logger)
	router.Use(middleware.Metrics(d.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Fail(w, http.StatusNotFound, "not_found", "not found", middleware.GetRequestID(r.Context()))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.Fail(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", middleware.GetRequestID(r.Context()))
	})

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.Ready(ctx); err != nil {
			slog.Warn("readiness check failed", "err", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, d.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIBudget(d.Limiter, cfg.RateLimitPerMinute))

		authHandler := authhandler.NewHandler(d.Auth, d.Identities, d.Audit, d.Limiter, authhandler.Options{
			LoginMinDuration: cfg.LoginMinDuration,
			LoginRateLimit:   cfg.LoginRateLimit,
			LoginRateWindow:  cfg.LoginRateWindow,
			InitSecret:       cfg.InitSecret,
			InitAllowedIPs:   cfg.InitAllowedIPs,
		})
		authHandler.RegisterRoutes(r)

		leaveHandler := leavehandler.NewHandler(d.Engine, d.Auth, d.KV, cfg.KVTimeout)
		leaveHandler.RegisterRoutes(r)

		usersHandler := usershandler.NewHandler(d.Identities, d.Hierarchy, d.Auth, d.Audit)
		usersHandler.RegisterRoutes(r)

		notificationsHandler := notificationshandler.NewHandler(d.Settings, d.Mailer, d.Auth, d.Audit)
		notificationsHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(d.Audit, d.Auth)
		auditHandler.RegisterRoutes(r)
	})

	return router
}
