package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// App is the wired scheduling engine shared by the binaries.
type App struct {
	Config   config.Config
	Log      zerolog.Logger
	Service  *appointment.Service
	Registry *prometheus.Registry
	Checks   []api.DependencyCheck

	closers []func()
}

type Options struct {
	// EnqueueReminders wires the asynq client when reminders are enabled.
	// The reminder worker only reads appointments and leaves it off.
	EnqueueReminders bool
}

// New connects the configured store, locker and side-effect sinks. Close
// must be called even when New returns an error.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var rdb *redis.Client
	if cfg.StoreDriver == config.StoreRedis || cfg.LockDriver == config.LockRedis {
		client, err := redisclient.NewRedisClient(redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisStoreDB,
		})
		if err != nil {
			return a, fmt.Errorf("redis connection: %w", err)
		}
		a.onClose(func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing redis")
			}
		})
		a.Checks = append(a.Checks, api.DependencyCheck{
			Name:     "redis",
			Critical: true,
			Ping:     func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
		rdb = client
		log.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisStoreDB).Msg("connected to Redis")
	}

	auditors := notify.MultiAuditor{notify.LogAuditor{Log: log.With().Str("component", "audit").Logger()}}

	var store appointment.Store
	switch cfg.StoreDriver {
	case config.StoreMemory:
		store = appointment.NewMemoryStore()
	case config.StoreRedis:
		store = appointment.NewRedisStore(rdb)
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		cancel()
		if err != nil {
			return a, fmt.Errorf("postgres connection: %w", err)
		}
		a.onClose(pool.Close)
		a.Checks = append(a.Checks, api.DependencyCheck{Name: "postgres", Critical: true, Ping: pool.Ping})
		log.Info().Msg("connected to Postgres")

		pg := appointment.NewPgStore(pool)
		if err := db.Migrate(ctx, pg); err != nil {
			return a, err
		}
		store = pg
		auditors = append(auditors, pg)
	default:
		return a, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	var locker redisclient.Locker
	if cfg.LockDriver == config.LockRedis {
		locker = redisclient.NewRedisDateLocker(rdb, cfg.LockTTL)
	} else {
		locker = appointment.NewLocalLocker()
	}

	svcOpts := []appointment.Option{
		appointment.WithLogger(log.With().Str("component", "scheduling").Logger()),
		appointment.WithAuditor(auditors),
		appointment.WithMetrics(metrics.New(a.Registry, "clinic")),
	}

	if opts.EnqueueReminders && cfg.RemindersEnabled {
		client := asynq.NewClient(QueueRedisOpt(cfg))
		a.onClose(func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing asynq client")
			}
		})
		svcOpts = append(svcOpts, appointment.WithReminders(
			notify.NewAsynqReminders(client, log.With().Str("component", "reminders").Logger()),
		))
	}

	a.Service = appointment.NewService(store, locker, cfg, svcOpts...)

	log.Info().
		Str("store", cfg.StoreDriver).
		Str("lock", cfg.LockDriver).
		Bool("reminders", opts.EnqueueReminders && cfg.RemindersEnabled).
		Msg("scheduling engine ready")
	return a, nil
}

// QueueRedisOpt points asynq at the reminder queue database.
func QueueRedisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisQueueDB,
	}
}

func (a *App) onClose(fn func()) { a.closers = append(a.closers, fn) }

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
