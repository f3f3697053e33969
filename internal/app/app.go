package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatforge/authcore/internal/config"
	"github.com/chatforge/authcore/internal/observability"
	"github.com/chatforge/authcore/internal/service"
)

// App bundles the process-level pieces: the HTTP server, the cleanup
// scheduler, and the observability runtime that must be drained on
// shutdown.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Cleanup       *service.CleanupScheduler
	Observability *observability.Runtime

	cancelCleanup context.CancelFunc
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, cleanup *service.CleanupScheduler, runtime *observability.Runtime) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Cleanup:       cleanup,
		Observability: runtime,
	}
}

// StartBackground launches the cleanup scheduler.
func (a *App) StartBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelCleanup = cancel
	go a.Cleanup.Start(ctx)
}

// Shutdown drains the HTTP server, stops background work, and flushes
// telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancelCleanup != nil {
		a.cancelCleanup()
	}
	drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(drainCtx); err != nil {
		a.Logger.Error("http server shutdown", slog.String("error", err.Error()))
	}
	if a.Observability != nil {
		return a.Observability.Shutdown(ctx)
	}
	return nil
}
