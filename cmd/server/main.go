package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/credstore/internal/config"
	"github.com/JonMunkholm/credstore/internal/core"
	"github.com/JonMunkholm/credstore/internal/logging"
	"github.com/JonMunkholm/credstore/internal/metrics"
	"github.com/JonMunkholm/credstore/internal/schema"
	"github.com/JonMunkholm/credstore/internal/storage"
	"github.com/JonMunkholm/credstore/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	registry, err := loadRegistry(cfg.Schema)
	if err != nil {
		slog.Error("failed to load schemas", "error", err)
		os.Exit(1)
	}
	slog.Info("schemas registered", "count", len(registry.All()))

	ctx := context.Background()

	backend, closeBackend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer closeBackend()

	m := metrics.New("credstore")
	store := storage.NewStore(backend, m)

	ids, err := core.NewIDGenerator(cfg.IDs.Strategy)
	if err != nil {
		slog.Error("invalid id strategy", "error", err)
		os.Exit(1)
	}

	limiter := core.NewWriteLimiter(cfg.Storage.MaxConcurrentWrites, cfg.Storage.WriteWait)

	service, err := core.NewService(registry, store,
		core.WithIDGenerator(ids),
		core.WithAuditLog(auditLog(cfg.Audit, store, registry, ids)),
		core.WithWriteLimiter(limiter),
		core.WithTableCache(cfg.Cache.TableSize, cfg.Cache.TableTTL),
		core.RequireActor(cfg.Security.RequireActor),
		core.WithMetrics(m),
	)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	if err := service.EnsureTables(ctx); err != nil {
		slog.Error("failed to prepare tables", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(core.NewOperations(service), cfg, m)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigCtx.Done()

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Let in-flight mutations finish before storage closes
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for writes to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("writes did not complete in time", "error", err)
			}
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		stop()
	}
	<-done
	slog.Info("server stopped")
}

// loadRegistry reads deployment schemas, or falls back to the built-in ones.
func loadRegistry(cfg config.SchemaConfig) (*schema.Registry, error) {
	if cfg.File == "" {
		return schema.Default(), nil
	}
	slog.Info("loading schemas", "file", cfg.File)
	return schema.LoadFile(cfg.File)
}

// openBackend builds the configured storage backend and its cleanup func.
func openBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, func(), error) {
	noop := func() {}

	switch cfg.Driver {
	case "memory":
		slog.Warn("using in-memory storage; data is lost on restart")
		return storage.NewMemoryBackend(), noop, nil

	case "csv":
		b, err := storage.NewCSVBackend(cfg.Dir)
		if err != nil {
			return nil, noop, err
		}
		slog.Info("using csv storage", "dir", cfg.Dir)
		return b, noop, nil

	case "postgres":
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("parse database URL: %w", err)
		}
		poolConfig.MaxConns = int32(cfg.MaxConns)
		poolConfig.MinConns = int32(cfg.MinConns)
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, noop, fmt.Errorf("connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("ping: %w", err)
		}

		if u, err := url.Parse(cfg.DatabaseURL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			slog.Info("connected to database")
		}

		b, err := storage.NewPostgresBackend(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		return b, pool.Close, nil
	}

	return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// auditLog always logs audit events and also appends them to the audit
// table when enabled and the schema declares one.
func auditLog(cfg config.AuditConfig, store *storage.Store, registry *schema.Registry, ids core.IDGenerator) core.AuditLog {
	if !cfg.Table {
		return core.SlogAuditLog{}
	}
	table, err := core.NewTableAuditLog(store, registry, ids)
	if err != nil {
		slog.Warn("audit table unavailable, logging audit events only", "error", err)
		return core.SlogAuditLog{}
	}
	return core.MultiAuditLog{core.SlogAuditLog{}, table}
}
