// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tessera/internal/api"
	"github.com/starford/tessera/internal/geometry"
	"github.com/starford/tessera/internal/mcpserver"
	"github.com/starford/tessera/internal/sse"
	"github.com/starford/tessera/internal/tilectl"
	"github.com/starford/tessera/internal/tileservice"
	"github.com/starford/tessera/internal/workspace"
)

// core is the session state shared by the HTTP and MCP front ends.
type core struct {
	geo geometry.Store
	ctl *tilectl.Controller
	svc *tileservice.Service
}

func newCore(cfg *Config, logger *slog.Logger, onChange tilectl.ChangeFunc) (*core, error) {
	path, err := cfg.Geometry.ResolvedPath()
	if err != nil {
		return nil, fmt.Errorf("resolve geometry path: %w", err)
	}
	geo, err := geometry.OpenStore(cfg.Geometry.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("init geometry store: %w", err)
	}
	store := workspace.NewStore(cfg.Tiles.Settings())
	ctl := tilectl.New(store, geo, logger, tilectl.Options{
		LookupTimeout: cfg.Geometry.Timeout,
		SaveTimeout:   cfg.Geometry.Timeout,
		SaveDebounce:  cfg.Tiles.SaveDebounce,
		OnChange:      onChange,
	})
	return &core{geo: geo, ctl: ctl, svc: tileservice.NewService(ctl, geo)}, nil
}

// close drains background geometry writes and closes the store.
func (c *core) close(logger *slog.Logger) {
	c.ctl.Wait()
	if err := c.geo.Close(); err != nil {
		logger.Error("geometry store close failed", slog.String("error", err.Error()))
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("geometry_driver", cfg.Geometry.Driver),
		slog.String("geometry_path", cfg.Geometry.Path),
		slog.Float64("tile_gap", cfg.Tiles.Gap),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(100 * time.Millisecond)
	defer broker.Close()

	c, err := newCore(cfg, logger, broker.PublishWorkspaceChange)
	if err != nil {
		return err
	}
	defer c.close(logger)

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := c.geo.List(ctx); err != nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if app.configPath != "" {
		g.Go(func() error {
			err := WatchConfig(gCtx, app.configPath, logger, func(next *Config) {
				settings := next.Tiles.Settings()
				c.ctl.Store().SetSettings(settings)
				broker.Publish(sse.Event{Type: sse.TypeSettingsChanged, Data: settings})
				if next.Tiles.SaveDebounce != cfg.Tiles.SaveDebounce {
					logger.Warn("tiles.save_debounce changes apply after restart")
				}
			})
			if err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the config watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio. Logs go to stderr since stdout
// carries the protocol. The process keeps its own workspaces; only the
// geometry store is shared with a running HTTP server.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	c, err := newCore(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer c.close(logger)

	logger.Info("MCP server starting", slog.String("geometry_driver", cfg.Geometry.Driver))
	return mcpserver.New(c.svc, app.version).ServeStdio()
}
