// Package wiring turns configuration into the concrete backends shared by the
// server, worker, replay and chaos commands.
package wiring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/demolens/internal/archive"
	"github.com/kiranshivaraju/demolens/internal/cache"
	"github.com/kiranshivaraju/demolens/internal/config"
	"github.com/kiranshivaraju/demolens/internal/consumer"
	"github.com/kiranshivaraju/demolens/internal/processor"
	"github.com/kiranshivaraju/demolens/internal/queue"
	"github.com/kiranshivaraju/demolens/internal/source"
	"github.com/kiranshivaraju/demolens/internal/store"
)

func noop() {}

// OpenStore connects the configured job store. Postgres migrations are applied
// before the store is returned. The returned func releases the connection.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		slog.Warn("using in-memory job store; state is lost on exit and not shared between processes")
		return store.NewMemoryStore(), noop, nil

	case "mongo":
		client, err := store.ConnectMongo(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		st, err := store.NewMongoStore(ctx, client, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		slog.Info("mongo job store connected", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
		return st, closeFn, nil

	case "postgres":
		pool, err := store.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.RunMigrations(cfg.URL, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("postgres job store connected, migrations applied")
		return store.NewPostgresStore(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// OpenQueue returns the configured event queue.
func OpenQueue(cfg config.QueueConfig, redisURL string) (queue.Queue, error) {
	switch cfg.Driver {
	case "dir":
		return queue.NewDirQueue(cfg.Dir, cfg.BatchSize)
	case "redis":
		return queue.NewRedisQueue(redisURL, cfg.RedisPrefix, cfg.BatchSize)
	case "rabbitmq":
		return queue.NewRabbitQueue(cfg.RabbitURL, cfg.RabbitQueue, cfg.BatchSize)
	}
	return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
}

// OpenArchive returns the configured failed-record archive.
func OpenArchive(ctx context.Context, cfg config.ArchiveConfig) (archive.Archive, error) {
	switch cfg.Driver {
	case "dir":
		return archive.NewDirArchive(cfg.Dir)
	case "minio":
		return archive.NewMinioArchive(ctx, cfg.Minio)
	}
	return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
}

// NewSource returns the HTTP client or the simulated source.
func NewSource(cfg config.SourceConfig) source.Source {
	if cfg.Mode == "http" {
		return source.NewHTTPClient(cfg.BaseURL, cfg.Timeout)
	}
	return source.NewSimulated()
}

// OpenCache connects Redis when a URL is configured. With no URL it returns a
// nil Cache; callers treat that as "no hints".
func OpenCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, func(), error) {
	if cfg.URL == "" {
		return nil, noop, nil
	}
	rc, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")
	return rc, func() { _ = rc.Close() }, nil
}

// NewProcessor builds the job processor from worker and source settings.
func NewProcessor(cfg *config.Config, st store.Store, src source.Source, ar archive.Archive, c cache.Cache) *processor.Processor {
	opts := []processor.Option{
		processor.WithNotFoundPolicy(cfg.Worker.NotFoundPolicy),
		processor.WithSourceTimeout(cfg.Source.Timeout),
	}
	if c != nil {
		opts = append(opts, processor.WithCache(c))
	}
	return processor.New(st, src, ar, opts...)
}

// attemptTTL bounds how long a Redis attempt counter lives after its first failure.
const attemptTTL = 24 * time.Hour

// NewAttemptCounter keeps counts in Redis when available so a restarted worker
// does not reset them.
func NewAttemptCounter(c cache.Cache) consumer.AttemptCounter {
	if c != nil {
		return consumer.NewCacheAttempts(c, attemptTTL)
	}
	return consumer.NewMemoryAttempts()
}
