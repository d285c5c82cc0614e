package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatekeeper/internal/admission"
	"gatekeeper/internal/api"
	"gatekeeper/internal/config"
	"gatekeeper/internal/logger"
	"gatekeeper/internal/observability"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/store"
	"gatekeeper/internal/version"
	"gatekeeper/internal/waf"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize the shared store
	storeInstance, err := store.New(cfg.Store)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer storeInstance.Close()

	// Wrap the store with instrumentation if metrics are enabled
	var activeStore store.Store = storeInstance
	var admissionMetrics *observability.AdmissionMetrics
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStore(storeInstance)
		if err != nil {
			slog.Error("Failed to create instrumented store", "error", err)
			os.Exit(1)
		}
		activeStore = instrumented

		admissionMetrics, err = observability.NewAdmissionMetrics()
		if err != nil {
			slog.Error("Failed to create admission metrics", "error", err)
			os.Exit(1)
		}
	}

	// Initialize the rate limiter
	resolver := ratelimit.NewRuleResolver(activeStore, cfg.Limiter.DefaultRules)
	limiter := ratelimit.New(activeStore, resolver, cfg.Limiter.BurstMultiplier)

	// Initialize the WAF engine. A store failure here is not fatal: the
	// engine starts with built-in rules and custom rules load on the next
	// mutation.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), cfg.Store.Timeout)
	wafEngine, err := waf.NewEngine(startupCtx, activeStore)
	startupCancel()
	if err != nil {
		slog.Warn("Custom WAF rules unavailable at startup", "error", err)
	}

	var analysisEngine *waf.Engine
	if cfg.WAF.Enabled {
		analysisEngine = wafEngine
	} else {
		slog.Info("WAF analysis disabled by configuration")
	}

	controller := admission.NewController(limiter, analysisEngine, admissionMetrics, cfg.Store.Timeout)

	// Initialize HTTP handlers
	handlers := api.NewHandlers(controller, wafEngine, resolver, activeStore, cfg, ver)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "store", cfg.Store.Type)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}
