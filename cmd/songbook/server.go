package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"songbook/internal/app/songs"
	"songbook/internal/app/users"
	"songbook/internal/auth"
	"songbook/internal/config"
	"songbook/internal/covers"
	"songbook/internal/http/middleware"
	"songbook/internal/httpapi"
	"songbook/internal/store"
)

type services struct {
	users   users.Service
	catalog songs.Service
	covers  *covers.Manager
	tokens  *auth.TokenManager
}

func newServices(cfg *config.Config, dataStore *store.Store) (services, error) {
	disk, err := covers.NewDiskStorage(cfg.Uploads.Dir)
	if err != nil {
		return services{}, fmt.Errorf("prepare cover storage: %w", err)
	}

	coverMgr := covers.NewManager(disk, dataStore, cfg.Uploads.CoverMaxBytes, log.Logger)
	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)

	return services{
		users:   users.New(dataStore, tokens),
		catalog: songs.New(dataStore, coverMgr),
		covers:  coverMgr,
		tokens:  tokens,
	}, nil
}

func newHTTPHandler(cfg *config.Config, svc services) http.Handler {
	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	api := httpapi.New(svc.users, svc.catalog, svc.covers, svc.tokens, httpapi.WithAuthRateLimit(limiter))

	return middleware.Chain(api.Routes(),
		middleware.RequestLogging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)
}

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
