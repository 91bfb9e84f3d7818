// Package app wires the docs cache components together and manages the server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/toolhive-docs-cache/internal/config"
)

// DocsApp encapsulates all components needed to run the docs cache server
type DocsApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server
}

// Start starts the scheduler, the file watcher and the HTTP server.
// It blocks until the HTTP server stops or encounters an error.
func (app *DocsApp) Start(ctx context.Context) error {
	if app.config.Scheduler.IsEnabled() {
		if err := app.components.Service.StartScheduler(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		slog.Info("Scheduler disabled, syncs run on demand only")
	}

	if app.components.Watcher != nil {
		if err := app.components.Watcher.Start(); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop shuts down the HTTP server, then releases the background components.
// An in-flight sync is allowed to finish.
func (app *DocsApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.components.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *DocsApp) GetConfig() *config.Config {
	return app.config
}

// GetComponents returns the wired components
func (app *DocsApp) GetComponents() *AppComponents {
	return app.components
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *DocsApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
