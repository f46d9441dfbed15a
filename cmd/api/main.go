package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nyumbahub/nyumba-backend/api/routes"
	"github.com/nyumbahub/nyumba-backend/internal/payments"
	"github.com/nyumbahub/nyumba-backend/internal/providers"
	"github.com/nyumbahub/nyumba-backend/internal/providers/flutterwave"
	"github.com/nyumbahub/nyumba-backend/internal/providers/manual"
	"github.com/nyumbahub/nyumba-backend/internal/providers/mpesa"
	"github.com/nyumbahub/nyumba-backend/internal/providers/stripe"
	"github.com/nyumbahub/nyumba-backend/internal/security"
	"github.com/nyumbahub/nyumba-backend/pkg/config"
	"github.com/nyumbahub/nyumba-backend/pkg/db"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
	"github.com/nyumbahub/nyumba-backend/pkg/metrics"
	"github.com/nyumbahub/nyumba-backend/pkg/migrate"
	"github.com/nyumbahub/nyumba-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(promRegistry)

	securityRepo := security.NewRepository(dbClient.DB())
	securitySvc, err := security.NewService(security.ServiceParams{
		Repo:      securityRepo,
		Logger:    logg,
		QueueSize: cfg.Security.EventQueueSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create security service", err)
		os.Exit(1)
	}
	defer securitySvc.Close()

	providerRegistry := providers.NewRegistry()

	paymentsRepo := payments.NewRepository(dbClient.DB())
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:     paymentsRepo,
		Refunder: providerRegistry,
		Logger:   logg,
		Metrics:  paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	if cfg.Stripe.APIKey != "" {
		stripeClient, stripeErr := stripe.NewClient(context.Background(), cfg.Stripe, logg)
		if stripeErr != nil {
			logg.Error(context.Background(), "failed to create stripe client", stripeErr)
			os.Exit(1)
		}
		stripeAdapter, stripeErr := stripe.NewAdapter(stripeClient, logg)
		if stripeErr != nil {
			logg.Error(context.Background(), "failed to create stripe adapter", stripeErr)
			os.Exit(1)
		}
		if err := providerRegistry.Register(enums.PaymentProviderStripe, providers.Capabilities{
			Processor: stripeAdapter,
			Refunder:  stripeAdapter,
		}); err != nil {
			logg.Error(context.Background(), "failed to register stripe provider", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "stripe credentials missing, card payments disabled")
	}

	if cfg.Flutterwave.SecretKey != "" {
		flwAdapter, flwErr := flutterwave.NewAdapter(flutterwave.NewClient(cfg.Flutterwave), logg)
		if flwErr != nil {
			logg.Error(context.Background(), "failed to create flutterwave adapter", flwErr)
			os.Exit(1)
		}
		if err := providerRegistry.Register(enums.PaymentProviderFlutterwave, providers.Capabilities{
			Processor: flwAdapter,
			Refunder:  flwAdapter,
		}); err != nil {
			logg.Error(context.Background(), "failed to register flutterwave provider", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "flutterwave credentials missing, mobile-money fallback disabled")
	}

	for provider, rail := range map[enums.PaymentProvider]string{
		enums.PaymentProviderBankTransfer: "bank_transfer",
		enums.PaymentProviderCash:         "cash",
	} {
		manualAdapter, manualErr := manual.NewAdapter(rail, logg)
		if manualErr != nil {
			logg.Error(context.Background(), "failed to create manual adapter", manualErr)
			os.Exit(1)
		}
		if err := providerRegistry.Register(provider, providers.Capabilities{Processor: manualAdapter}); err != nil {
			logg.Error(context.Background(), "failed to register manual provider", err)
			os.Exit(1)
		}
	}

	if !cfg.Mpesa.HasCredentials() {
		logg.Warn(context.Background(), "mpesa credentials missing, stk pushes will be rejected by daraja")
	}
	mpesaAdapter, err := mpesa.NewAdapter(mpesa.NewClient(cfg.Mpesa, logg), paymentsSvc, logg, paymentMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create mpesa adapter", err)
		os.Exit(1)
	}
	// M-Pesa settles asynchronously; it registers with no synchronous
	// processor and no refunder.
	if err := providerRegistry.Register(enums.PaymentProviderMpesa, providers.Capabilities{}); err != nil {
		logg.Error(context.Background(), "failed to register mpesa provider", err)
		os.Exit(1)
	}

	orchestrator := providers.NewOrchestrator(providerRegistry, paymentsSvc, logg)
	amountValidator := security.NewAmountValidator(securitySvc)
	fraudChecker := security.NewFraudChecker(paymentsRepo, securitySvc, logg)
	ipGate := security.NewIPGate(securityRepo, securitySvc, logg, cfg.Security.SuspiciousIPRanges)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			paymentsSvc,
			orchestrator,
			mpesaAdapter,
			amountValidator,
			fraudChecker,
			ipGate,
			securitySvc,
			promRegistry,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shut down cleanly")
}
