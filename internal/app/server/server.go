package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"timeoff/internal/domain/audit"
	"timeoff/internal/domain/auth"
	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/leave"
	"timeoff/internal/domain/memstore"
	"timeoff/internal/domain/notifications"
	"timeoff/internal/domain/org"
	"timeoff/internal/domain/settings"
	"timeoff/internal/platform/config"
	"timeoff/internal/platform/crypto"
	"timeoff/internal/platform/db"
	"timeoff/internal/platform/email"
	"timeoff/internal/platform/events"
	"timeoff/internal/platform/jobs"
	"timeoff/internal/platform/kv"
	"timeoff/internal/platform/metrics"
	"timeoff/internal/platform/ratelimit"
)

type App struct {
	Config  config.Config
	Router  http.Handler
	Runner  *jobs.Runner
	Metrics *metrics.Collector
	closers []func() error
}

type stores struct {
	identities identity.StoreAPI
	org        org.StoreAPI
	requests   leave.StoreAPI
	audit      audit.StoreAPI
	settings   settings.StoreAPI
	pool       *pgxpool.Pool
	ping       func(ctx context.Context) error
}

// Build wires config -> stores -> services -> router. The job runner is
// created but not started.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Metrics: metrics.New()}

	st, err := app.openStores(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	hasher := auth.NewHasher(cfg.BcryptCost)
	hasher.Warm()
	if cfg.RunSeed {
		if err := db.Seed(ctx, st.identities, hasher, cfg); err != nil {
			app.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	store, err := openKV(cfg, st.pool)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, store.Close)

	publisher, err := openPublisher(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, publisher.Close)

	sealer, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		app.Close()
		return nil, err
	}
	chainKey := cfg.AuditChainKey
	if chainKey == "" {
		slog.Warn("AUDIT_CHAIN_KEY not set; deriving the audit chain key from JWT_SECRET")
		chainKey = cfg.JWTSecret
	}
	chain, err := audit.NewChain([]byte(chainKey))
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Runner = jobs.New(512, 4, app.Metrics)
	if purger, ok := store.(kv.Purger); ok {
		app.Runner.Every(jobs.JobMaintenance, cfg.MaintenanceInterval, func(ctx context.Context) error {
			removed, err := purger.Purge(ctx, time.Now())
			if err != nil {
				return err
			}
			if removed > 0 {
				slog.Info("expired kv entries purged", "component", "kv", "removed", removed)
			}
			return nil
		})
	}

	settingsSvc := settings.New(st.settings, sealer, email.Settings(email.FromConfig(cfg)))
	mailer := email.New(settingsSvc)
	dispatcher := notifications.New(app.Runner, publisher, mailer, app.Metrics)
	recorder := audit.NewRecorder(st.audit, chain, app.Runner, app.Metrics)
	engine := leave.NewEngine(st.requests, st.identities, dispatcher, recorder, leave.Options{
		MinReasonLength: cfg.MinReasonLength,
		Location:        cfg.Location(),
	})
	registry := auth.NewRegistry(store, st.identities, cfg.KVTimeout)
	authSvc := auth.NewService(st.identities, hasher, auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL), registry, app.Metrics)

	app.Router = NewRouter(Deps{
		Config:     cfg,
		Identities: st.identities,
		Hierarchy:  org.New(st.org),
		Engine:     engine,
		Auth:       authSvc,
		Audit:      recorder,
		Settings:   settingsSvc,
		Mailer:     mailer,
		Limiter:    ratelimit.New(store, cfg.KVTimeout, app.Metrics),
		KV:         store,
		Metrics:    app.Metrics,
		Ready:      readiness(st.ping, store),
	})
	return app, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.Config.Ephemeral {
		slog.Warn("ephemeral mode: all data is kept in process memory and lost on exit")
		mem := memstore.New()
		return stores{
			identities: mem.Identities(),
			org:        mem.Org(),
			requests:   mem.Requests(),
			audit:      mem.Audit(),
			settings:   mem.Settings(),
			ping:       func(context.Context) error { return mem.Ping() },
		}, nil
	}

	pool, err := db.Connect(ctx, a.Config)
	if err != nil {
		return stores{}, fmt.Errorf("db connect: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	if a.Config.RunMigrations {
		if err := db.Migrate(ctx, pool, a.Config.MigrationsDir); err != nil {
			return stores{}, fmt.Errorf("migrations: %w", err)
		}
	}
	return stores{
		identities: identity.NewStore(pool),
		org:        org.NewStore(pool),
		requests:   leave.NewStore(pool),
		audit:      audit.NewStore(pool),
		settings:   settings.NewStore(pool),
		pool:       pool,
		ping:       pool.Ping,
	}, nil
}

func openKV(cfg config.Config, pool *pgxpool.Pool) (kv.Store, error) {
	switch cfg.KVBackend {
	case config.KVRedis:
		return kv.NewRedis(kv.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.KVTimeout,
		}), nil
	case config.KVPostgres:
		if pool == nil {
			return nil, errors.New("postgres kv backend requires a database")
		}
		return kv.NewPostgres(pool), nil
	default:
		if cfg.IsProduction() {
			slog.Warn("in-process kv backend: revocations and rate limits are not shared across instances")
		}
		return kv.NewMemory(), nil
	}
}

func openPublisher(cfg config.Config) (events.Publisher, error) {
	switch cfg.EventBroker {
	case config.BrokerKafka:
		return events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.BrokerRabbitMQ:
		pub, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq connect: %w", err)
		}
		return pub, nil
	default:
		return events.Noop{}, nil
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func readiness(db func(context.Context) error, store kv.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if p, ok := store.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("kv: %w", err)
			}
		}
		return nil
	}
}

// Serve runs the HTTP server and the job runner until ctx is cancelled,
// then drains both.
func (a *App) Serve(ctx context.Context) error {
	runCtx, stopJobs := context.WithCancel(context.Background())
	a.Runner.Start(runCtx)
	defer func() {
		stopJobs()
		a.Runner.Wait()
		a.Close()
	}()

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("timeoff server listening", "addr", a.Config.Addr, "env", a.Config.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
}

// Migrate applies migrations and the bootstrap seed, then returns.
func Migrate(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Ephemeral {
		return errors.New("nothing to migrate in ephemeral mode")
	}
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return db.Seed(ctx, identity.NewStore(pool), auth.NewHasher(cfg.BcryptCost), cfg)
}
