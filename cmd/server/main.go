// Package main starts the local JSON API in front of a client session:
// it loads configuration, hydrates the persisted state, refreshes it from
// the remote service in the background and serves until interrupted.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/app"
	"github.com/atinyakov/GophFood/internal/config"
	"github.com/atinyakov/GophFood/internal/logger"
	"github.com/atinyakov/GophFood/internal/server/handler/http"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command-line, config file and environment configuration.
	options := config.New()
	options.BindFlags(pflag.CommandLine)
	pflag.Parse()
	if err := options.Resolve(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log
	defer func() { _ = zapLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, zapLogger); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, options *config.Options, zapLogger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Build the session: store, remote client, geocoder and state machines.
	sess, err := app.Open(ctx, options, zapLogger, reg)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			zapLogger.Warn("close session", zap.Error(err))
		}
	}()

	if err := sess.Hydrate(ctx); err != nil {
		zapLogger.Warn("initial refresh failed, serving local state", zap.Error(err))
	}
	sess.StartAutoRefresh(ctx, options.RefreshInterval)

	// Create HTTP handlers and build the router with middleware and routes.
	router := http.NewRouter(http.Handlers{
		Session:   &http.SessionHandler{Session: sess},
		Accounts:  &http.AccountHandler{Accounts: sess.Auth},
		Cart:      &http.CartHandler{Cart: sess.Cart},
		Bookmarks: &http.BookmarkHandler{Bookmarks: sess.Bookmarks},
		Address:   &http.AddressHandler{Flow: sess.Address},
		Checkout:  &http.CheckoutHandler{Checkout: sess.CheckoutFlow()},
	}, options.APIToken, reg, zapLogger)

	server := &nethttp.Server{
		Addr:              options.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zapLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
