// Package main is the entry point for the netvault network artifact server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/netvault/netvault/internal/config"
	"github.com/netvault/netvault/internal/logging"
	"github.com/netvault/netvault/internal/metrics"
	"github.com/netvault/netvault/internal/registry"
	"github.com/netvault/netvault/internal/server"
	"github.com/netvault/netvault/internal/storage"
	"github.com/netvault/netvault/internal/upload"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 8080)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	maxUploadSize := flag.Int64("max-upload-size", 0, "maximum upload size in bytes (default: from config or 268435456)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}
	if *maxUploadSize != 0 {
		cfg.Server.MaxUploadSize = *maxUploadSize
	}

	// Initialize structured logging.
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if cfg.Observability.Metrics {
		metrics.Register()
	}

	// Initialize the artifact store.
	store, err := storage.NewStore(cfg.Storage.RootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize artifact store: %v\n", err)
		os.Exit(1)
	}
	// Crash-only recovery: temp files were never renamed, so anything left
	// behind by a previous crash is safe to delete.
	if err := store.CleanTempFiles(); err != nil {
		slog.Warn("Failed to clean temp files", "error", err)
	}
	slog.Info("Artifact store initialized", "root", store.RootDir)

	// Initialize the artifact registry.
	regPath := cfg.Registry.Path
	if err := os.MkdirAll(filepath.Dir(regPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create registry directory: %v\n", err)
		os.Exit(1)
	}
	reg, err := registry.New(regPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize artifact registry: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	// Crash-only recovery: the storage directory is the data, the registry
	// is the index. Reconcile on every boot.
	added, removed, err := upload.Reconcile(context.Background(), store, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to reconcile registry: %v\n", err)
		os.Exit(1)
	}
	if added > 0 || removed > 0 {
		slog.Info("Registry reconciled", "indexed", added, "dropped", removed)
	}
	if cfg.Observability.Metrics {
		if n, err := reg.Count(context.Background()); err == nil {
			metrics.ArtifactsTotal.Set(float64(n))
		}
	}

	srv, err := server.New(cfg, server.WithStore(store), server.WithRegistry(reg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("netvault listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// SIGTERM/SIGINT handler: stop accepting connections, wait for in-flight
	// requests with a timeout, then exit. No cleanup -- crash-only design.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}
