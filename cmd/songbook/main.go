package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"songbook/internal/config"
	"songbook/internal/logging"
	"songbook/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("songbook stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.SetGlobalLogger(logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	dataStore := store.New(db)
	svc, err := newServices(cfg, dataStore)
	if err != nil {
		return err
	}

	if cfg.BootstrapDemo {
		if err := bootstrapDemoData(ctx, dataStore, svc.catalog); err != nil {
			return err
		}
	}

	server := newHTTPServer(cfg, newHTTPHandler(cfg, svc))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("uploads", cfg.Uploads.Dir).Msg("API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
