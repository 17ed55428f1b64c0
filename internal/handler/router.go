package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/estate-assistant/internal/alert"
	"github.com/capitalize-ai/estate-assistant/internal/middleware"
	"github.com/capitalize-ai/estate-assistant/internal/service"
	"github.com/capitalize-ai/estate-assistant/internal/store"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

// Deps are the services the local API exposes.
type Deps struct {
	Store    *store.Store
	Chat     *service.ChatManager
	Exchange *service.Exchange
	History  *service.HistoryPager
	Channel  *service.NotificationChannel
	Alerts   *alert.Queue
	Logger   *logger.Logger
}

// RouterConfig tunes the local API.
type RouterConfig struct {
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	LiveRequired      bool
}

// NewRouter builds the local API.
func NewRouter(d Deps, cfg RouterConfig) http.Handler {
	healthHandler := NewHealthHandler(d.Channel, cfg.LiveRequired)
	authHandler := NewAuthHandler(d.Store, d.Chat, d.Channel, d.Logger)
	sessionHandler := NewSessionHandler(d.Chat, d.Exchange, d.Logger)
	messageHandler := NewMessageHandler(d.Exchange, d.Logger)
	historyHandler := NewHistoryHandler(d.History)
	notificationHandler := NewNotificationHandler(d.Channel, d.Store)
	alertHandler := NewAlertHandler(d.Alerts, d.Logger)
	propertyHandler := NewPropertyHandler(d.Store)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Identity(d.Store))
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
			r.Put("/user-mode", authHandler.SetUserMode)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/resolve", sessionHandler.Resolve)
			r.Get("/current", sessionHandler.Current)
			r.Put("/mode", sessionHandler.SwitchMode)

			r.Get("/history", historyHandler.Open)
			r.Post("/history/next", historyHandler.Next)

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", sessionHandler.Start)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", sessionHandler.Get)
					r.Delete("/", sessionHandler.Delete)
					r.Post("/select", sessionHandler.Select)
					r.Post("/end", sessionHandler.End)
					r.Patch("/context", sessionHandler.MergeContext)
					r.Post("/feedback", sessionHandler.Feedback)

					r.Post("/messages", messageHandler.Send)
					r.Post("/messages/{messageId}/feedback", messageHandler.Feedback)
				})
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(middleware.RequireIdentity)
			r.Get("/", notificationHandler.List)
			r.Post("/refresh", notificationHandler.Refresh)
			r.Post("/read-all", notificationHandler.MarkAllRead)
			r.Post("/{id}/read", notificationHandler.MarkRead)
			r.Delete("/{id}", notificationHandler.Delete)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Get("/stream", alertHandler.Stream)
			r.Delete("/{id}", alertHandler.Dismiss)
			r.Post("/{id}/invoke", alertHandler.Invoke)
			r.Post("/{id}/pause", alertHandler.Pause)
			r.Post("/{id}/resume", alertHandler.Resume)
		})

		r.Route("/properties", func(r chi.Router) {
			r.Get("/recent", propertyHandler.Recent)
			r.Get("/saved", propertyHandler.Saved)
			r.Post("/{id}/view", propertyHandler.View)
			r.Put("/{id}/save", propertyHandler.Save)
			r.Delete("/{id}/save", propertyHandler.Unsave)
		})
	})

	return r
}
