package di

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"characterchat/backend/ai"
	"characterchat/backend/character/repository"
	charservice "characterchat/backend/character/service"
	chatservice "characterchat/backend/conversation/service"
	"characterchat/backend/credential"
	"characterchat/backend/pkg/cache"
	"characterchat/backend/pkg/config"
	"characterchat/backend/pkg/health"
	"characterchat/backend/pkg/logger"
	"characterchat/backend/pkg/resilience"
	sharedredis "characterchat/backend/shared/redis"
	"characterchat/backend/shared/observability"

	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gorm.io/gorm"
)

// healthCheckPeriod is how often background health checks run.
const healthCheckPeriod = 30 * time.Second

// Container holds the application's long-lived dependencies. It is built
// once at startup and closed on shutdown.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	// Exactly one of DB and SQLite is set, depending on Database.Driver.
	DB     *gorm.DB
	SQLite *sql.DB
	Redis  *sharedredis.RedisClient

	Breaker     *resilience.CircuitBreaker
	Gateway     *ai.Gateway
	Prober      *ai.Prober
	KeyChecks   *cache.Cache[ai.KeyCheck]
	Characters  *charservice.CharacterService
	Credentials *credential.Service
	Chat        *chatservice.ChatService
	Health      *health.Checker

	MeterProvider  *sdkmetric.MeterProvider
	MetricsHandler http.Handler

	closers []func(context.Context) error
}

// New wires every dependency described by cfg.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Container, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	c := &Container{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	if err := c.setupObservability(); err != nil {
		return nil, err
	}

	repo, err := c.setupDatabase(ctx)
	if err != nil {
		return nil, err
	}

	store, err := c.setupCredentialStore(ctx)
	if err != nil {
		return nil, err
	}

	c.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "gateway",
		FailureThreshold: cfg.Gateway.FailureThreshold,
		SuccessThreshold: 1,
		RetryTimeout:     cfg.Gateway.RetryTimeout,
	}, log)

	c.Gateway = ai.NewGateway(ai.GatewayConfig{
		BaseURL: cfg.Gateway.BaseURL,
		Model:   cfg.Gateway.Model,
		SiteURL: cfg.Gateway.SiteURL,
		Title:   cfg.Gateway.Title,
		Timeout: cfg.Gateway.Timeout,
	}, c.Breaker, log)

	c.Prober = ai.NewProber(cfg.Gateway.BaseURL, &http.Client{Timeout: cfg.Gateway.ProbeTimeout}, log)

	if cfg.Cache.Enabled {
		c.KeyChecks = cache.New[ai.KeyCheck](cache.Options{
			TTL:             cfg.Cache.TTL,
			CleanupInterval: cfg.Cache.PurgeWindow,
			MaxItems:        cfg.Cache.MaxSize,
		})
		c.addCloser(func(context.Context) error {
			c.KeyChecks.Close()
			return nil
		})
	}

	c.Characters = charservice.NewCharacterService(repo, log)
	c.Credentials = credential.NewService(store, c.Prober, c.KeyChecks, log)

	meter := noop.NewMeterProvider().Meter(cfg.Observability.ServiceName)
	if c.MeterProvider != nil {
		meter = c.MeterProvider.Meter(cfg.Observability.ServiceName)
	}
	metrics, err := chatservice.NewMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat metrics: %w", err)
	}
	c.Chat = chatservice.NewChatService(c.Characters, c.Credentials, c.Gateway, metrics, log)

	c.Health = health.NewChecker(log, healthCheckPeriod)
	c.Health.RegisterDatabaseCheck(c.pingDatabase)
	if c.Redis != nil {
		c.Health.RegisterRedisCheck(c.Redis.Ping)
	}
	c.Health.RegisterBreakerCheck("gateway", func() string { return string(c.Breaker.GetState()) })

	log.Info("Container initialized",
		"db_driver", cfg.Database.Driver,
		"credential_store", cfg.Credential.Store,
		"model", c.Gateway.Model(),
	)
	return c, nil
}

func (c *Container) setupObservability() error {
	obs := c.Config.Observability

	shutdown, err := observability.SetupTracing(obs.ServiceName, obs.TracingEnabled, os.Stderr)
	if err != nil {
		return err
	}
	c.addCloser(shutdown)

	if !obs.MetricsEnabled {
		return nil
	}
	mp, handler, err := observability.SetupMetrics(obs.ServiceName)
	if err != nil {
		return err
	}
	c.MeterProvider = mp
	c.MetricsHandler = handler
	c.addCloser(mp.Shutdown)
	return nil
}

func (c *Container) setupDatabase(ctx context.Context) (repository.CharacterRepository, error) {
	switch c.Config.Database.Driver {
	case config.DriverPostgres:
		db, err := config.NewDB(c.Config)
		if err != nil {
			return nil, err
		}
		c.DB = db
		c.addCloser(func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})

		repo := repository.NewGormCharacterRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	default:
		db, err := config.OpenSQLite(c.Config.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.SQLite = db
		c.addCloser(func(context.Context) error { return db.Close() })

		return repository.NewSQLiteCharacterRepository(ctx, db)
	}
}

func (c *Container) setupCredentialStore(ctx context.Context) (credential.Store, error) {
	cfg := c.Config

	var store credential.Store
	switch cfg.Credential.Store {
	case config.StoreRedis:
		c.Redis = sharedredis.NewRedisClient(sharedredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.addCloser(func(context.Context) error { return c.Redis.Close() })
		if err := c.Redis.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = credential.NewRedisStore(c.Redis)

	case config.StoreVault:
		vs, err := credential.NewVaultStore(credential.VaultConfig{
			Address:   cfg.Vault.Address,
			Token:     cfg.Vault.Token,
			Namespace: cfg.Vault.Namespace,
			Mount:     cfg.Vault.Mount,
			Path:      cfg.Vault.Path,
		})
		if err != nil {
			return nil, err
		}
		store = vs

	default:
		ss, err := credential.NewSQLiteStore(ctx, c.SQLite)
		if err != nil {
			return nil, err
		}
		store = ss
	}

	if cfg.Credential.EncryptionKey != "" {
		store = credential.NewSealedStore(store, cfg.Credential.EncryptionKey)
	}
	return store, nil
}

func (c *Container) pingDatabase(ctx context.Context) error {
	if c.SQLite != nil {
		return c.SQLite.PingContext(ctx)
	}
	return config.TestConnection(ctx, c.DB)
}

func (c *Container) addCloser(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
