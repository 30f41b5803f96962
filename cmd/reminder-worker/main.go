package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/hackgods/clinic-scheduling/internal/app"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("prod", "info", os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logger.Component(logger.New(cfg.Env, cfg.LogLevel, os.Stdout), "reminder-worker")
	log.Info().Str("env", cfg.Env).Int("queue_db", cfg.RedisQueueDB).Msg("reminder-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, log, app.Options{})
	defer a.Close()
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return
	}

	srv := asynq.NewServer(
		app.QueueRedisOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			Logger:          notify.AsynqLogger{Log: log},
			ErrorHandler:    notify.ErrorHandler(log),
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
	)

	mux := notify.NewServeMux(a.Service, notify.LogDeliverer{Log: log}, log)
	if err := srv.Start(mux); err != nil {
		log.Error().Err(err).Msg("failed to start asynq server")
		return
	}
	log.Info().Msg("consuming reminder:send tasks")

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, stopping reminder worker")
	srv.Shutdown()
}
