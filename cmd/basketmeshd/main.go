// Command basketmeshd runs the basketmesh HTTP API: it loads configuration
// from the environment, opens the durable audit store, loads agent and basket
// definitions and serves the orchestration endpoints until interrupted.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/basketmesh"
	"github.com/hupe1980/basketmesh/config"
	"github.com/hupe1980/basketmesh/eventbus"
	"github.com/hupe1980/basketmesh/logging"
	"github.com/hupe1980/basketmesh/server"
	"github.com/hupe1980/basketmesh/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.LogLevel), "json", false)

	audit, err := telemetry.NewSQLiteStore(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to open audit store: %v", err)
	}
	defer audit.Close()

	mesh := basketmesh.New(func(o *basketmesh.Options) {
		o.Audit = audit
		o.LogDir = cfg.LogDir
		o.EventBufferSize = cfg.EventBufferSize
		o.StateTTL = cfg.StateTTL
		o.Logger = logger
		o.RunLogger = logger
	})
	defer mesh.Close()

	if cfg.DefinitionsPath != "" {
		if err := mesh.LoadDefinitions(cfg.DefinitionsPath); err != nil {
			log.Fatalf("Failed to load definitions: %v", err)
		}
	}

	if cfg.ForwarderURL != "" {
		fwd := eventbus.NewForwarder(cfg.ForwarderURL, logger)
		fwd.Attach(mesh.Bus())
		defer fwd.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h := server.NewHandler(mesh, logger)
	h.RegisterRoutes(e)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	logger.Info("basketmeshd stopped")
}
