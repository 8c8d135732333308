package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/memory"
	"github.com/cschleiden/go-mediaflow/backend/mysql"
	redisbackend "github.com/cschleiden/go-mediaflow/backend/redis"
	"github.com/cschleiden/go-mediaflow/backend/sqlite"
	"github.com/cschleiden/go-mediaflow/classifier"
	"github.com/cschleiden/go-mediaflow/client"
	"github.com/cschleiden/go-mediaflow/config"
	"github.com/cschleiden/go-mediaflow/internal/tracing"
	"github.com/cschleiden/go-mediaflow/log"
	"github.com/cschleiden/go-mediaflow/pipeline"
	"github.com/cschleiden/go-mediaflow/stages"
	"github.com/cschleiden/go-mediaflow/stages/catalog"
	"github.com/cschleiden/go-mediaflow/stages/fsstore"
	"github.com/cschleiden/go-mediaflow/stages/tools"
)

// environment holds what every command needs: configuration, logging, tracing and the broker.
type environment struct {
	cfg            *config.Config
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	backend        backend.Backend
	definitions    []*pipeline.Definition

	cat     stages.Catalog
	closers []func(context.Context) error
}

func newEnvironment(ctx context.Context, cmd *cli.Command) (*environment, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	stderr := cmd.Root().ErrWriter
	if stderr == nil {
		stderr = os.Stderr
	}

	logger := log.New(stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	env := &environment{
		cfg:    cfg,
		logger: logger,
	}

	definitions, err := loadDefinitions(cmd.StringSlice("pipeline-file"))
	if err != nil {
		return nil, err
	}
	env.definitions = definitions

	tp, shutdown, err := tracing.NewProvider(ctx, tracing.ProviderOptions{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	env.tracerProvider = tp
	env.closers = append(env.closers, shutdown)

	if err := cfg.EnsureDirectories(); err != nil {
		env.Close(ctx)
		return nil, err
	}

	b, err := openBackend(cfg, logger, tp)
	if err != nil {
		env.Close(ctx)
		return nil, fmt.Errorf("opening %s broker: %w", cfg.Broker.Kind, err)
	}
	env.backend = b
	env.closers = append(env.closers, func(context.Context) error { return b.Close() })

	return env, nil
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	overridden := false
	if kind := cmd.String("broker"); kind != "" {
		cfg.Broker.Kind = kind
		overridden = true
	}

	if level := cmd.String("log-level"); level != "" {
		cfg.Logging.Level = level
		overridden = true
	}

	if overridden {
		if err := cfg.Normalize(); err != nil {
			return nil, err
		}

		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func loadDefinitions(files []string) ([]*pipeline.Definition, error) {
	byName := make(map[string]*pipeline.Definition)
	names := []string{pipeline.Ingest, pipeline.Lifecycle}

	for _, name := range names {
		d, err := pipeline.Builtin(name)
		if err != nil {
			return nil, err
		}
		byName[name] = d
	}

	for _, file := range files {
		d, err := pipeline.Load(file)
		if err != nil {
			return nil, err
		}

		if _, ok := byName[d.Name]; !ok {
			names = append(names, d.Name)
		}
		byName[d.Name] = d
	}

	definitions := make([]*pipeline.Definition, 0, len(names))
	for _, name := range names {
		definitions = append(definitions, byName[name])
	}

	return definitions, nil
}

func openBackend(cfg *config.Config, logger *slog.Logger, tp trace.TracerProvider) (backend.Backend, error) {
	opts := []backend.BackendOption{
		backend.WithLogger(logger),
		backend.WithTracerProvider(tp),
		backend.WithDecisionLockTimeout(cfg.Broker.DecisionLockTimeout.Duration),
		backend.WithActivityLockTimeout(cfg.Broker.ActivityLockTimeout.Duration),
		backend.WithTokenRetention(cfg.Broker.TokenRetention.Duration),
	}

	switch cfg.Broker.Kind {
	case "memory":
		return memory.NewMemoryBackend(opts...), nil

	case "sqlite":
		return sqlite.NewSqliteBackend(cfg.Broker.SQLitePath, sqlite.WithBackendOptions(opts...)), nil

	case "mysql":
		// A connection for every decision and activity poller, plus one shared by heartbeats and the client
		pool := 2*cfg.Worker.Pollers + 1

		return mysql.NewMysqlBackendWithDSN(cfg.Broker.MySQLDSN,
			mysql.WithBackendOptions(opts...),
			mysql.WithConnectionPool(pool, 0),
		), nil

	case "redis":
		rclient := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Broker.RedisAddr},
			Password: cfg.Broker.RedisPassword,
			DB:       cfg.Broker.RedisDB,
		})

		ropts := []redisbackend.RedisBackendOption{redisbackend.WithBackendOptions(opts...)}
		if cfg.Broker.KeyPrefix != "" {
			ropts = append(ropts, redisbackend.WithKeyPrefix(cfg.Broker.KeyPrefix))
		}

		rb, err := redisbackend.NewRedisBackend(rclient, ropts...)
		if err != nil {
			return nil, err
		}

		return rb, nil
	}

	return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
}

// catalog opens the asset catalog on first use.
func (e *environment) catalog() (stages.Catalog, error) {
	if e.cat != nil {
		return e.cat, nil
	}

	switch e.cfg.Storage.Catalog {
	case "memory":
		e.cat = catalog.NewMemoryCatalog()

	case "broker":
		sb, ok := e.backend.(interface{ DB() *sql.DB })
		if !ok {
			return nil, errors.New("broker does not provide a database for the catalog")
		}

		c, err := catalog.NewSQLiteCatalog(sb.DB(), clock.New())
		if err != nil {
			return nil, err
		}
		e.cat = c

	case "sqlite":
		db, err := sql.Open("sqlite", fmt.Sprintf("file:%v?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", e.cfg.Storage.CatalogPath))
		if err != nil {
			return nil, fmt.Errorf("opening catalog: %w", err)
		}
		db.SetMaxOpenConns(1)

		c, err := catalog.NewSQLiteCatalog(db, clock.New())
		if err != nil {
			db.Close()
			return nil, err
		}

		e.cat = c
		e.closers = append(e.closers, func(context.Context) error { return db.Close() })

	default:
		return nil, fmt.Errorf("unknown catalog %q", e.cfg.Storage.Catalog)
	}

	return e.cat, nil
}

// stages builds the stage actions on the configured storage, catalog and tools.
func (e *environment) stages() (*stages.Stages, error) {
	cat, err := e.catalog()
	if err != nil {
		return nil, err
	}

	cls, err := classifier.New(e.cfg.Classifier)
	if err != nil {
		return nil, err
	}

	store, err := fsstore.New(fsstore.Options{
		Landing: e.cfg.Storage.Landing,
		Working: e.cfg.Storage.Working,
		Tiers: map[stages.Tier]string{
			stages.TierCDN:      e.cfg.Storage.CDN,
			stages.TierNearLine: e.cfg.Storage.NearLine,
			stages.TierArchive:  e.cfg.Storage.Archive,
		},
	})
	if err != nil {
		return nil, err
	}

	tl := tools.New(tools.Options{
		Exiftool:  e.cfg.Tools.Exiftool,
		Mediainfo: e.cfg.Tools.Mediainfo,
		Ffmpeg:    e.cfg.Tools.Ffmpeg,
		Logger:    log.WithModule(e.logger, "tools"),
	})
	if err := tl.LookPath(); err != nil {
		e.logger.Warn("media tool not found, stages using it will fail", "error", err)
	}

	return stages.New(stages.Options{
		Classifier:        cls,
		Store:             store,
		Catalog:           cat,
		Extractor:         tl,
		Tools:             tl,
		StoryboardBaseURL: e.cfg.Storage.StoryboardBaseURL,
		Logger:            log.WithModule(e.logger, "stages"),
	})
}

func (e *environment) client() *client.Client {
	return client.New(e.backend, e.definitions...)
}

// Close releases everything opened by the environment, most recent first.
func (e *environment) Close(ctx context.Context) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			e.logger.Error("closing", "error", err)
		}
	}

	e.closers = nil
}
