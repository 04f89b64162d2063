package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"newsdesk/authoring/internal/app"
	"newsdesk/authoring/internal/authoring"
	"newsdesk/authoring/internal/autosave"
	"newsdesk/authoring/internal/config"
	"newsdesk/authoring/internal/lock"
	"newsdesk/authoring/internal/logger"
	"newsdesk/authoring/internal/metrics"
	"newsdesk/authoring/internal/session"
	"newsdesk/authoring/internal/store"
	"newsdesk/authoring/internal/workflow"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	meters := metrics.New(registry)

	client := store.NewClient(cfg.StoreURL, cfg.StoreToken, log, meters)
	locks := lock.NewCoordinator(client, log, meters)
	planner := autosave.NewPlanner(client, cfg.AutosaveDelay, log, meters)
	validator := workflow.NewValidator(cfg.DefaultTimezone)

	// work queue recovery is optional; without redis interrupted sessions
	// are simply not listed on the next login
	var workqueue *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		var err error
		workqueue, err = session.NewRedisStore(cfg.RedisURL, cfg.WorkqueueTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer workqueue.Close()
		log.Info().Msg("work queue registry enabled")
	}

	var service *authoring.Service
	if workqueue != nil {
		service = authoring.NewService(client, locks, planner, validator, workqueue, log, meters)
	} else {
		service = authoring.NewService(client, locks, planner, validator, nil, log, meters)
	}

	httpConfig := app.HTTPConfig{
		Secret:     []byte(cfg.JWTSecret),
		TokenTTL:   cfg.AccessTTL,
		CORSOrigin: cfg.CORSOrigin,
		Gatherer:   registry,
	}
	if workqueue != nil {
		httpConfig.Redis = workqueue
	}
	httpServer := app.NewHTTPServer(service, client, httpConfig, log)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("authoring gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
