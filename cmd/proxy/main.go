package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/cache"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/constants"
	logger "github.com/wso2/open-oauth2-introspect-proxy/internal/logging"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/metrics"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/proxy"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/upstream"
)

func main() {
	configPath := flag.String("config", constants.DefaultConfigPath, "Path to the configuration file")
	envFile := flag.String("env-file", "", "Load environment variables from this file before reading the config")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger.SetDebug(*debugMode)

	// 1. Load the environment file when requested
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			logger.Error("Error loading env file %s: %v", *envFile, err)
			os.Exit(1)
		}
	}

	// 2. Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Error loading config: %v", err)
		os.Exit(1)
	}

	// 3. Start the upstream process if configured
	var procManager *upstream.Manager
	if cfg.Upstream.Command != "" {
		procManager = upstream.NewManager()
		if err := procManager.Start(cfg.Upstream); err != nil {
			logger.Warn("Failed to start upstream process: %v", err)
		}
	}

	// 4. Build the shared introspection cache when any resource wants it
	var store cache.Client
	if cfg.CacheEnabled() {
		store, err = cache.New(cfg.Cache)
		if err != nil {
			logger.Error("Error building cache: %v", err)
			os.Exit(1)
		}
		if err := store.Ping(context.Background()); err != nil {
			logger.Error("Cache is unreachable: %v", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	// 5. Build the introspection resources the policy can delegate to
	registry, err := BuildRegistry(cfg, store)
	if err != nil {
		logger.Error("Error building resources: %v", err)
		os.Exit(1)
	}

	// 6. Register metrics when enabled
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler, err = metrics.Register(nil)
		if err != nil {
			logger.Error("Error registering metrics: %v", err)
			os.Exit(1)
		}
	}

	// 7. Build the main router
	mux := proxy.NewRouter(cfg, registry, metricsHandler)

	listenAddress := fmt.Sprintf(":%d", cfg.ListenPort)

	// 8. Start the server
	srv := &http.Server{
		Addr:    listenAddress,
		Handler: mux,
	}

	go func() {
		logger.Info("Proxy listening on %s, forwarding to %s", listenAddress, cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
	}()

	// 9. Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("Shutting down...")

	// 10. First terminate the upstream process if running
	if procManager != nil && procManager.IsRunning() {
		procManager.Shutdown()
	}

	// 11. Then shutdown the server
	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := proxy.NewShutdownContext(5 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error: %v", err)
	}
	logger.Info("Stopped.")
}
