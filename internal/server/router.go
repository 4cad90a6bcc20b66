package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/fedutinova/invoice-extractor/internal/config"
	httpapi "github.com/fedutinova/invoice-extractor/internal/transport/http"
)

func NewRouter(h *httpapi.Handlers, cfg config.Config) http.Handler {
	r := chi.NewRouter()

	// CORS middleware - must be first
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout + 5*time.Second))

	// one budget per client across upload and extraction
	var uploadLimit func(http.Handler) http.Handler
	if cfg.RateLimitPerMinute > 0 {
		uploadLimit = httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute)
	}

	h.Routers(r, uploadLimit)
	return r
}
