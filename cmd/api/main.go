package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-digest-go/internal/api"
	"media-digest-go/internal/bootstrap"
	"media-digest-go/internal/config"
	"media-digest-go/internal/logger"
	"media-digest-go/internal/processor"
)

const shutdownGrace = 2 * time.Minute

func main() {
	cfg, _, err := config.Load(os.Args[1:])
	if err != nil {
		if config.IsHelp(err) {
			fmt.Println(err)
			return
		}
		// no Config yet, so log with the environment-derived settings
		logger.New().WithError(err).Error("invalid configuration")
		os.Exit(2)
	}

	log := bootstrap.NewLogger(cfg)
	log.WithField("service", "media-digest-go").Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build components")
	}

	// runs are bound to a root context that outlives the signal so that
	// in-flight tasks can finish during the grace period
	root, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	tasks := processor.New(root, app.Pipeline, log.Entry)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(tasks, app.Presets, cfg.Server.AllowedOrigins, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.WithError(err).Fatal("server terminated")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("tasks still running, cancelling")
		cancelRuns()
		// cancelled runs still remove their temporary uploads
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer waitCancel()
		_ = tasks.Shutdown(waitCtx)
	}
	log.Info("stopped")
}
