package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/frahmantamala/membership-portal/internal"
	"github.com/frahmantamala/membership-portal/internal/affiliation"
	"github.com/frahmantamala/membership-portal/internal/authz"
	authzPostgres "github.com/frahmantamala/membership-portal/internal/authz/postgres"
	"github.com/frahmantamala/membership-portal/internal/core/events"
	"github.com/frahmantamala/membership-portal/internal/metrics"
	"github.com/frahmantamala/membership-portal/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Dependencies struct {
	Config   *internal.Config
	DB       *gorm.DB
	Logger   *slog.Logger
	Bus      *events.EventBus
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Resolver *authz.Resolver
	Scoper   *affiliation.Scoper
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Configure(rootCmd.ErrOrStderr(), config.Logging.Level, config.Logging.Format)

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps := &Dependencies{
		Config: config,
		DB:     db,
		Logger: log,
		Bus:    events.NewEventBus(log),
	}

	if config.Metrics.Enabled {
		deps.Registry = prometheus.NewRegistry()
		deps.Metrics = metrics.New(config.Metrics.Namespace, deps.Registry)
	}

	if config.Events.Enabled {
		client, err := events.NewRedisClient(ctx, config.Events.RedisAddr)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.Redis = client
		deps.Bus.SubscribeAll(events.NewRedisPublisher(client, config.Events.Channel, log).Handle)
	}

	deps.Resolver = authz.NewResolver(authzPostgres.NewStore(db), log,
		authz.WithPublisher(deps.Bus),
		authz.WithMetrics(deps.Metrics))
	deps.Scoper = affiliation.NewScoper(deps.Resolver, log, affiliation.WithMetrics(deps.Metrics))

	return deps, nil
}

func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if sqlDB, err := d.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			d.Logger.Error("database close error", "error", err)
		}
	}
}

// WriteMetrics prints the gathered counters in the Prometheus text format.
func (d *Dependencies) WriteMetrics(w io.Writer) error {
	if d.Registry == nil {
		return nil
	}
	families, err := d.Registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// initDB opens the configured database through gorm and applies the pool
// settings.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case internal.DriverSQLite:
		dialector = sqlite.Open(cfg.GetDSN())
	case internal.DriverPostgres, "":
		dialector = postgres.Open(cfg.GetDSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// withDependencies runs fn with initialized dependencies and releases them
// afterwards.
func withDependencies(fn func(ctx context.Context, deps *Dependencies) error) error {
	ctx, cancel := internal.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := fn(ctx, deps); err != nil {
		return err
	}
	if dumpMetrics {
		return deps.WriteMetrics(rootCmd.OutOrStdout())
	}
	return nil
}
