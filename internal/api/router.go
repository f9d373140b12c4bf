/**
 * @description
 * This file sets up the HTTP router for the functions backend using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, rate limiting, and authentication, and maps the routes to
 * their handler functions.
 */
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/VineMe-App/vineme-backend/pkg/middleware"
)

// RouterConfig carries the pieces the router needs beyond the handlers.
type RouterConfig struct {
	Auth                 AuthConfig
	AllowedOrigins       string
	RequestRatePerMinute int
}

// NewRouter creates a new Chi router and registers the functions routes.
func NewRouter(h *FunctionHandlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "x-service-role-key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RequestRatePerMinute > 0 {
		r.Use(middleware.RateLimitMiddleware(cfg.RequestRatePerMinute))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Functions backend is healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth))

		r.Post("/functions/create-referred-user", h.HandleCreateReferredUser)
		r.Post("/functions/push-notify", h.HandlePushNotify)
		r.Post("/contacts/access", h.HandleContactAccess)
	})

	return r
}

func allowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"https://*", "http://*"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
