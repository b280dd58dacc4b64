package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/botdesk/internal/bot"
	"github.com/wolfman30/botdesk/internal/chat"
	httpmiddleware "github.com/wolfman30/botdesk/internal/http/middleware"
	"github.com/wolfman30/botdesk/internal/leads"
	"github.com/wolfman30/botdesk/internal/ratelimit"
	"github.com/wolfman30/botdesk/internal/tenancy"
	"github.com/wolfman30/botdesk/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger       *logging.Logger
	ChatHandler  *chat.Handler
	BotHandler   *bot.Handler
	LeadsHandler *leads.Handler

	// Bots is consulted before accepting lead forms so unknown bots get 404.
	Bots chat.BotSource
	// LeadLimiter throttles the public lead form per client IP (optional).
	LeadLimiter ratelimit.Limiter

	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// HealthCheck reports whether backing stores are reachable (optional).
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Widget-facing API
	if cfg.ChatHandler != nil {
		v1 := cfg.ChatHandler.Routes()
		if cfg.LeadsHandler != nil {
			v1.With(
				tenancy.BotFromURL,
				requireBot(cfg.Bots),
				httpmiddleware.RateLimit(cfg.LeadLimiter, httpmiddleware.ByClientIP("leads"), cfg.Logger),
			).Post("/{botID}/leads", cfg.LeadsHandler.CreateLead)
		}
		r.Mount("/v1/bots", v1)
	}

	// Operator API (HMAC JWT)
	if cfg.AdminAuthSecret != "" && cfg.BotHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

			bots := cfg.BotHandler.Routes()
			if cfg.LeadsHandler != nil {
				bots.Get("/{botID}/leads", cfg.LeadsHandler.ListLeads)
			}
			if cfg.ChatHandler != nil {
				bots.Post("/{botID}/conversations/{conversationID}/booking-confirmed", cfg.ChatHandler.ConfirmBooking)
			}
			admin.Mount("/bots", bots)
		})
	}

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
