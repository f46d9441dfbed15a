package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nyumbahub/nyumba-backend/internal/payments"
	"github.com/nyumbahub/nyumba-backend/internal/providers/mpesa"
	"github.com/nyumbahub/nyumba-backend/internal/sweep"
	"github.com/nyumbahub/nyumba-backend/pkg/config"
	"github.com/nyumbahub/nyumba-backend/pkg/db"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
	"github.com/nyumbahub/nyumba-backend/pkg/metrics"
	"github.com/nyumbahub/nyumba-backend/pkg/migrate"
	"github.com/nyumbahub/nyumba-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweep-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sweep-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sweepMetrics := metrics.NewSweepMetrics(prometheus.DefaultRegisterer)
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	paymentsRepo := payments.NewRepository(dbClient.DB())
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:    paymentsRepo,
		Logger:  logg,
		Metrics: paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	mpesaAdapter, err := mpesa.NewAdapter(mpesa.NewClient(cfg.Mpesa, logg), paymentsSvc, logg, paymentMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create mpesa adapter", err)
		os.Exit(1)
	}

	job, err := sweep.NewStuckPaymentJob(sweep.StuckPaymentJobParams{
		Logger:     logg,
		Payments:   paymentsRepo,
		Resolver:   mpesaAdapter,
		Metrics:    sweepMetrics,
		StuckAfter: cfg.Sweep.StuckAfter,
		BatchSize:  cfg.Sweep.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	lock, err := sweep.NewRedisLock(redisClient, redisClient.LockKey(job.Name()), cfg.Sweep.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	runner, err := sweep.NewRunner(sweep.RunnerParams{
		Logger:   logg,
		Job:      job,
		Lock:     lock,
		Metrics:  sweepMetrics,
		Interval: cfg.Sweep.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep runner", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "starting sweep worker")

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweep worker shutting down gracefully")
}
