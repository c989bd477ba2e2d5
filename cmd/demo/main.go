// Package main is a demonstration host for the resilience primitives. It
// loads named circuit breaker and retry instances from YAML, drives a flaky
// simulated operation through them, and serves the Prometheus metrics and
// admin endpoints with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SiftScience/resilience4j/adminhttp"
	"github.com/SiftScience/resilience4j/circuitbreaker"
	"github.com/SiftScience/resilience4j/config"
	"github.com/SiftScience/resilience4j/eventlog"
	"github.com/SiftScience/resilience4j/internal/metrics"
	"github.com/SiftScience/resilience4j/retry"
)

var errFlaky = errors.New("simulated downstream failure")

func main() {
	configPath := flag.String("config", "configs/resilience.yaml", "path to configuration file")
	listen := flag.String("listen", ":8080", "metrics/admin listen address")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "message", w)
	}

	// Route the event trail to a rotating file when configured.
	eventLogger := logger
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		rw, err := eventlog.NewRotatingWriter(cfg.Logging.Output, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
		if err != nil {
			logger.Error("failed to open event log", "error", err)
			os.Exit(1)
		}
		defer rw.Close()
		eventLogger = slog.New(slog.NewJSONHandler(rw, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	logger.Info("configuration loaded",
		"breakers", len(cfg.CircuitBreakers.Instances),
		"retries", len(cfg.Retries.Instances),
		"admin_enabled", cfg.Admin.Enabled,
		"metrics_enabled", cfg.Metrics.IsEnabled(),
	)

	if cfg.Metrics.IsEnabled() {
		metrics.Init()
	}

	// Build the named breaker instances.
	breakers := make(map[string]*circuitbreaker.CircuitBreaker)
	for name := range cfg.CircuitBreakers.Instances {
		bcfg, err := cfg.BreakerConfig(name)
		if err != nil {
			logger.Error("failed to resolve breaker config", "breaker", name, "error", err)
			os.Exit(1)
		}
		b, err := circuitbreaker.New(name, bcfg,
			circuitbreaker.WithLogger(logger),
			circuitbreaker.WithEventHandler(eventlog.NewHandler(eventLogger)),
		)
		if err != nil {
			logger.Error("failed to create breaker", "breaker", name, "error", err)
			os.Exit(1)
		}
		breakers[name] = b
	}

	// Build the named retry instances.
	retries := make(map[string]*retry.Retry)
	for name := range cfg.Retries.Instances {
		rcfg, err := cfg.RetryConfig(name)
		if err != nil {
			logger.Error("failed to resolve retry config", "retry", name, "error", err)
			os.Exit(1)
		}
		r, err := retry.New(name, rcfg, retry.WithLogger(logger))
		if err != nil {
			logger.Error("failed to create retry", "retry", name, "error", err)
			os.Exit(1)
		}
		retries[name] = r
	}

	mux := http.NewServeMux()
	if cfg.Metrics.IsEnabled() {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}
	if cfg.Admin.Enabled {
		admin := adminhttp.New(breakers, cfg.Admin.IPAllowlist, cfg.Admin.JWTSecret, logger)
		admin.RegisterRoutes(mux)
	}

	reloader := config.NewReloader(*configPath, cfg, logger)
	reloader.OnReload(func(*config.Config) {
		logger.Info("configuration updated; new settings apply to instances created after this point")
	})
	reloader.Start()
	defer reloader.Stop()

	server := &http.Server{Addr: *listen, Handler: mux}
	go func() {
		logger.Info("serving metrics and admin endpoints", "addr", *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go driveTraffic(ctx, breakers, retries, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// driveTraffic exercises every configured breaker (and the retry executor
// sharing its name, if any) against a simulated operation that fails 60% of
// the time, so state transitions are observable on the admin and metrics
// endpoints.
func driveTraffic(ctx context.Context, breakers map[string]*circuitbreaker.CircuitBreaker, retries map[string]*retry.Retry, logger *slog.Logger) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for name, b := range breakers {
			call := func() error {
				perm, err := b.AcquirePermission()
				if err != nil {
					return err
				}
				start := time.Now()
				err = flakyOperation()
				if err != nil {
					b.OnError(time.Since(start), err, perm)
					return err
				}
				b.OnSuccess(time.Since(start), perm)
				return nil
			}

			var err error
			if r, ok := retries[name]; ok {
				err = r.Do(ctx, call)
			} else {
				err = call()
			}

			var denied *circuitbreaker.CallNotPermittedError
			if errors.As(err, &denied) {
				logger.Debug("call denied", "breaker", name, "state", denied.State.String())
			}
		}
	}
}

func flakyOperation() error {
	time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
	if rand.Float64() < 0.6 {
		return fmt.Errorf("%w: status 503", errFlaky)
	}
	return nil
}
