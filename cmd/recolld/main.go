package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/recollect-ai/recolld/internal/config"
	"github.com/recollect-ai/recolld/pkg/analysis"
	"github.com/recollect-ai/recolld/pkg/core/capture"
	"github.com/recollect-ai/recolld/pkg/core/capture/mic"
	"github.com/recollect-ai/recolld/pkg/core/capture/stt"
	"github.com/recollect-ai/recolld/pkg/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("recolld exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := store.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var analyzer capture.Analyzer
	if cfg.GoogleAPIKey != "" {
		a, err := analysis.New(ctx, cfg.GoogleAPIKey, cfg.GeminiModel, st, logger)
		if err != nil {
			return fmt.Errorf("init analyzer: %w", err)
		}
		analyzer = a
	} else {
		logger.Warn("GOOGLE_API_KEY not set; conversation analysis disabled")
	}

	manager := capture.NewManager(
		cfg.SessionConfig(),
		st,
		mic.NewSource(logger),
		func(credential string) capture.Transcriber {
			return stt.NewDeepgram(credential)
		},
		analyzer,
		logger,
	)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: newHandler(manager, st, cfg, logger),
	}

	listenErrCh := make(chan error, 1)
	go func() {
		logger.Info("recolld listening", "addr", cfg.Addr)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	// Stop every live session before the HTTP surface goes away, so each
	// conversation is finalized and analyzed.
	manager.StopAll(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
