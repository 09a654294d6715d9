// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/mocsync/internal/api"
	"github.com/starford/mocsync/internal/dispatch"
	"github.com/starford/mocsync/internal/journal"
	"github.com/starford/mocsync/internal/linksync"
	"github.com/starford/mocsync/internal/mcpserver"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/moc"
	"github.com/starford/mocsync/internal/mocservice"
	"github.com/starford/mocsync/internal/registry"
	"github.com/starford/mocsync/internal/sse"
	"github.com/starford/mocsync/internal/storage"
	"github.com/starford/mocsync/internal/watcher"
)

var errConfigRequired = errors.New("config is required")

// newLogger builds the JSON logger. When a log file is configured, output is
// also written to a size-rotated file.
func newLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	if cfg.LogFile != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
}

// core holds the components shared by every command.
type core struct {
	logger     *slog.Logger
	store      *storage.FS
	classifier moc.Classifier
	registry   *registry.Registry
	syncer     *linksync.Synchronizer
	journal    *journal.DB
	listeners  []linksync.EventCallback
}

func newCore(cfg *Config, logger *slog.Logger) (*core, error) {
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	c := &core{
		logger:     logger,
		store:      store,
		classifier: moc.Classifier{Strict: cfg.MOC.Strict},
	}
	c.registry = registry.New(store, c.classifier, logger)
	c.syncer = linksync.New(store, c.registry, c.classifier, logger, c.publish)

	if cfg.Journal.Enabled() {
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		c.journal = db
		c.listeners = append(c.listeners, func(ev models.LinkEvent) {
			if err := db.Record(ev); err != nil {
				logger.Warn("journal: record failed", slog.String("kind", ev.Kind), slog.String("error", err.Error()))
			}
		})
	}

	if err := c.registry.Rebuild(); err != nil {
		c.close()
		return nil, fmt.Errorf("initial scan: %w", err)
	}
	return c, nil
}

// publish fans an activity event out to every listener. Listeners are only
// added before the watcher starts.
func (c *core) publish(ev models.LinkEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	for _, fn := range c.listeners {
		fn(ev)
	}
}

// recorder returns the journal as an interface, nil when disabled.
func (c *core) recorder() journal.Recorder {
	if c.journal == nil {
		return nil
	}
	return c.journal
}

func (c *core) service() *mocservice.Service {
	return mocservice.NewService(c.store, c.registry, c.syncer, c.classifier, c.recorder())
}

func (c *core) close() {
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.logger.Warn("journal: close failed", slog.String("error", err.Error()))
		}
	}
}

// Run starts the watcher daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	out := app.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := newLogger(cfg.App, out)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.Bool("strict", cfg.MOC.Strict),
		slog.Bool("http_enabled", cfg.App.HTTP.Enabled),
		slog.String("journal_path", cfg.Journal.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		httpServer *http.Server
		broker     *sse.Broker
	)
	if cfg.App.HTTP.Enabled {
		broker = sse.NewBroker(2 * time.Second)
		defer broker.Close()
		c.listeners = append(c.listeners, broker.PublishLinkEvent)
		httpServer = &http.Server{
			Addr:    cfg.App.HTTP.Address(),
			Handler: newHTTPHandler(c.service(), cfg, broker),
		}
	}

	d := dispatch.New(c.classifier, c.registry, c.syncer, logger, c.publish)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := watcher.Watch(gCtx, c.store.Root(), cfg.Watcher.RenameWindow, logger, func(ev dispatch.Event) {
			_ = d.Handle(ev)
		})
		if err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	if httpServer != nil {
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
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
		cancel()

		if httpServer != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Stopped successfully")
	return nil
}

func newHTTPHandler(svc *mocservice.Service, cfg *Config, broker *sse.Broker) http.Handler {
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

	var sseHandler http.Handler
	if broker != nil {
		sseHandler = broker
	}
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, sseHandler))
	return r
}

// RunScan builds the registry once and writes it to w, as
// "prefix<TAB>path" lines or as a JSON array.
func RunScan(ctx context.Context, w io.Writer, asJSON bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	out := app.logOutput
	if out == nil {
		out = os.Stderr
	}
	logger := newLogger(app.config.App, out)

	c, err := newCore(app.config, logger)
	if err != nil {
		return err
	}
	defer c.close()

	entries := c.service().Entries(ctx)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", e.Prefix, e.Path); err != nil {
			return err
		}
	}
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	out := app.logOutput
	if out == nil {
		out = os.Stderr
	}
	logger := newLogger(app.config.App, out)
	slog.SetDefault(logger)

	c, err := newCore(app.config, logger)
	if err != nil {
		return err
	}
	defer c.close()

	logger.Info("mcp: serving on stdio", slog.String("vault_path", c.store.Root()))
	return mcpserver.New(c.service(), app.version).ServeStdio()
}
