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

	"github.com/starford/wstore/internal/api"
	"github.com/starford/wstore/internal/auth"
	"github.com/starford/wstore/internal/fileservice"
	"github.com/starford/wstore/internal/journal"
	"github.com/starford/wstore/internal/maintenance"
	"github.com/starford/wstore/internal/mcpserver"
	"github.com/starford/wstore/internal/pathres"
	"github.com/starford/wstore/internal/sse"
	"github.com/starford/wstore/internal/storage"
	"github.com/starford/wstore/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

// components is everything both entry points share.
type components struct {
	resolver *pathres.Resolver
	engine   *storage.Engine
	journal  *journal.DB
}

func (c *components) close() {
	if c.journal != nil {
		_ = c.journal.Close()
	}
}

// journalLister returns the journal as an interface, nil when disabled.
func (c *components) journalLister() api.JournalLister {
	if c.journal == nil {
		return nil
	}
	return c.journal
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func buildComponents(cfg *Config) (*components, error) {
	if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	resolver, err := pathres.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage root: %w", err)
	}
	c := &components{
		resolver: resolver,
		engine:   storage.NewEngine(storage.WithMaxConcurrentIO(cfg.Storage.MaxConcurrentIO)),
	}
	if cfg.Journal.Enabled {
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		c.journal = db
	}
	return c, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	if app.logOut == nil {
		app.logOut = os.Stdout
	}
	logger := newLogger(app.logOut, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_path", cfg.Storage.Path),
		slog.Bool("journal", cfg.Journal.Enabled),
		slog.Bool("watcher", cfg.Watcher.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	comp, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comp.close()

	gate, err := auth.NewGate(auth.Credential{
		Username:     cfg.Auth.Username,
		Password:     cfg.Auth.Password,
		PasswordHash: cfg.Auth.PasswordHash,
		Realm:        cfg.Auth.Realm,
	})
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	broker := sse.NewBroker(0)
	defer broker.Close()

	var recorder fileservice.Recorder = broker
	var reconciler *journal.Reconciler
	if comp.journal != nil {
		recorder = fileservice.MultiRecorder(comp.journal, broker)
		tree := fileservice.NewService(comp.resolver, comp.engine, fileservice.WithLogger(logger))
		reconciler = journal.NewReconciler(comp.journal, tree, recorder, logger)
		n, err := reconciler.Reconcile(ctx, "", "reconcile")
		if err != nil {
			logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
		} else {
			logger.Info("initial reconcile done", slog.Int("changes", n))
		}
	}

	svc := fileservice.NewService(comp.resolver, comp.engine,
		fileservice.WithRecorder(recorder),
		fileservice.WithSource("http"),
		fileservice.WithLogger(logger))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Mount("/", api.NewRouter(svc, gate, cfg.Storage.MaxBodyBytes))

	servers := []*http.Server{{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.App.AdminHTTP.Enabled() {
		admin := chi.NewRouter()
		admin.Use(middleware.RequestID)
		admin.Use(middleware.Recoverer)
		admin.Mount("/", api.NewAdminRouter(gate, broker, comp.journalLister()))
		servers = append(servers, &http.Server{
			Addr:              cfg.App.AdminHTTP.Address(),
			Handler:           admin,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	if cfg.Watcher.Enabled && reconciler != nil {
		g.Go(func() error {
			if err := watcher.Watch(gCtx, comp.resolver.Root(), reconciler, cfg.Watcher.DebounceDuration(), logger); err != nil {
				return fmt.Errorf("watcher: %w", err)
			}
			return nil
		})
	}

	if cfg.Maintenance.SweepSchedule != "" {
		sweeper := maintenance.NewSweeper(comp.resolver.Root(), cfg.Maintenance.TempMaxAgeDuration(), logger)
		g.Go(func() error {
			return sweeper.Run(gCtx, cfg.Maintenance.SweepSchedule)
		})
	}

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

		// Streaming SSE handlers only return once the broker closes.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
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

// errShutdown cancels the group so background loops stop with the servers.
var errShutdown = errors.New("shutdown")

// RunMCP serves the storage tools over stdio until the client disconnects.
// No credential is checked: the caller already owns the process.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	if app.logOut == nil {
		app.logOut = os.Stderr
	}
	logger := newLogger(app.logOut, cfg.App.LogLevel)

	comp, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comp.close()

	svcOpts := []fileservice.Option{
		fileservice.WithSource(mcpserver.Source),
		fileservice.WithLogger(logger),
	}
	var lister mcpserver.JournalLister
	if comp.journal != nil {
		svcOpts = append(svcOpts, fileservice.WithRecorder(comp.journal))
		lister = comp.journal
	}
	svc := fileservice.NewService(comp.resolver, comp.engine, svcOpts...)

	logger.Info("Starting MCP server on stdio",
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("version", app.version))

	srv := mcpserver.New(svc, lister, app.version, int(cfg.Storage.MaxBodyBytes))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}
