package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"signal-alerts/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig collects the handlers mounted by NewRouter. Nil handlers are skipped.
type RouterConfig struct {
	Alerts        *AlertsHandler
	Signals       *SignalsHandler
	Notifications *NotificationsHandler
	Stream        http.Handler
	WebSocket     http.Handler
	Metrics       http.Handler
	Health        func(ctx context.Context) error
	Auth          *auth.Middleware
	Logger        *slog.Logger
}

// NewRouter builds the service's HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(AccessLog(logger))
	if cfg.Auth != nil {
		r.Use(cfg.Auth.Wrap)
	}

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Alerts != nil {
			r.Get("/alerts", cfg.Alerts.List)
			r.Get("/alerts/{id}", cfg.Alerts.Get)
		}
		if cfg.Signals != nil {
			r.Post("/signals/{id}/invalidate", cfg.Signals.Invalidate)
		}
		if cfg.Notifications != nil {
			r.Get("/notifications", cfg.Notifications.List)
			r.Post("/notifications/{id}/read", cfg.Notifications.MarkRead)
			r.Post("/notifications/{id}/ack", cfg.Notifications.Acknowledge)
		}
		if cfg.Stream != nil {
			r.Method(http.MethodGet, "/notifications/stream", cfg.Stream)
		}
		if cfg.WebSocket != nil {
			r.Method(http.MethodGet, "/notifications/ws", cfg.WebSocket)
		}
	})
	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
