// Package server initializes and runs the moltd server: it wires the
// backing store, the core services, the HTTP surface and the expiry
// sweeper, and handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/moltmd/moltd/internal/logging"
	"github.com/moltmd/moltd/internal/server/config"
	"github.com/moltmd/moltd/internal/server/documents"
	"github.com/moltmd/moltd/internal/server/httpapi"
	"github.com/moltmd/moltd/internal/server/reaper"
	"github.com/moltmd/moltd/internal/server/shared/db"
	"github.com/moltmd/moltd/internal/server/workspaces"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	handler *httpapi.Handler
	reaper  *reaper.Reaper
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	var m db.RepositoryManager
	if c.DatabaseDSN == "" {
		logger.Warn(context.Background(), "no database DSN configured, using in-memory store")
		m = db.NewInMemoryRepositoryManager()
	} else {
		var err error
		m, err = db.NewPostgresRepositoryManager(c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
	}

	ds := documents.NewService(m.Documents())
	ws := workspaces.NewService(m.Workspaces(), ds)
	handler := httpapi.NewHandler(ds, ws, m.Documents(), m.Workspaces(), logger)
	rp := reaper.New(m.Documents(), m.Workspaces(), logger)

	return &App{config: c, logger: logger, handler: handler, reaper: rp}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: httpapi.NewRouter(app.handler),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err.Error())
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.reaper.Run(ctx, app.config.SweepInterval, app.config.RetentionPeriod)
	}()

	wg.Wait()
}
