package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fedutinova/invoice-extractor/internal/attempt"
	"github.com/fedutinova/invoice-extractor/internal/config"
	"github.com/fedutinova/invoice-extractor/internal/extract"
	"github.com/fedutinova/invoice-extractor/internal/extract/gemini"
	"github.com/fedutinova/invoice-extractor/internal/extract/openai"
	"github.com/fedutinova/invoice-extractor/internal/redis"
	"github.com/fedutinova/invoice-extractor/internal/server"
	"github.com/fedutinova/invoice-extractor/internal/session"
	httpapi "github.com/fedutinova/invoice-extractor/internal/transport/http"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.Info("starting invoice extractor",
		"addr", cfg.HTTPAddr,
		"provider", cfg.Provider,
		"model", cfg.Model,
		"session_store", cfg.SessionStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := newProvider(ctx, cfg)

	store, err := newSessionStore(cfg)
	if err != nil {
		slog.Error("failed to initialize session store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	client := extract.NewClient(provider, cfg.SystemInstruction, cfg.DefaultInstruction, slog.Default())
	handlers := &httpapi.Handlers{
		Runner:    attempt.NewRunner(store, client, cfg.RequestTimeout),
		Extractor: client,
		Store:     store,
		Provider:  provider.Name(),
		Config:    cfg,
	}
	r := server.NewRouter(handlers, cfg)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	cancel()
}

func setupLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

// newProvider never fails: a provider that cannot be built is replaced by one
// that reports the reason on every attempt, so the page still loads.
func newProvider(ctx context.Context, cfg config.Config) extract.Provider {
	var (
		p   extract.Provider
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		p, err = openai.New(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.OpenAIBaseURL,
		})
	case config.ProviderGemini:
		p, err = gemini.New(ctx, gemini.Config{
			APIKey:  cfg.GoogleAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.GeminiBaseURL,
		})
	default:
		err = fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		slog.Warn("model provider unavailable, attempts will fail", "provider", cfg.Provider, "err", err)
		return extract.Unavailable(cfg.Provider, err)
	}
	slog.Info("model provider initialized", "provider", p.Name(), "model", cfg.Model)
	return p
}

func newSessionStore(cfg config.Config) (session.Store, error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return session.NewMemoryStore(cfg.SessionTTL), nil
	}
	redisService, err := redis.New(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	slog.Info("redis session store connected", "ttl", cfg.SessionTTL)
	return session.NewRedisStore(redisService, cfg.SessionTTL), nil
}
