package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nyumbahub/nyumba-backend/api/controllers"
	webhookcontrollers "github.com/nyumbahub/nyumba-backend/api/controllers/webhooks"
	"github.com/nyumbahub/nyumba-backend/api/middleware"
	"github.com/nyumbahub/nyumba-backend/internal/payments"
	"github.com/nyumbahub/nyumba-backend/internal/providers"
	"github.com/nyumbahub/nyumba-backend/internal/providers/mpesa"
	"github.com/nyumbahub/nyumba-backend/internal/security"
	"github.com/nyumbahub/nyumba-backend/pkg/config"
	"github.com/nyumbahub/nyumba-backend/pkg/db"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
	"github.com/nyumbahub/nyumba-backend/pkg/redis"
)

// NewRouter assembles the HTTP surface: public health/metrics/webhook routes
// and the authenticated payment routes with their per-surface rate limits.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	paymentsSvc payments.Service,
	orchestrator *providers.Orchestrator,
	mpesaAdapter *mpesa.Adapter,
	amountValidator *security.AmountValidator,
	fraudChecker *security.FraudChecker,
	ipGate *security.IPGate,
	securitySvc security.Service,
	promRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	paymentPolicy := middleware.NewRateLimitPolicy("payment", cfg.RateLimit.PaymentWindow, cfg.RateLimit.PaymentLimit)
	stkPolicy := middleware.NewRateLimitPolicy("stk", cfg.RateLimit.StkWindow, cfg.RateLimit.StkLimit)
	refundPolicy := middleware.NewRateLimitPolicy("refund", cfg.RateLimit.RefundWindow, cfg.RateLimit.RefundLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mpesa", webhookcontrollers.MpesaCallback(mpesaAdapter, redisClient, securitySvc, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.IPPolicy(ipGate, logg))

		r.With(middleware.PaymentRateLimit(paymentPolicy, redisClient, securitySvc, logg)).
			Post("/", controllers.PaymentCreate(paymentsSvc, orchestrator, amountValidator, fraudChecker, logg))
		r.Get("/", controllers.PaymentList(paymentsSvc, logg))
		r.Get("/{paymentId}", controllers.PaymentDetail(paymentsSvc, logg))
		r.With(middleware.PaymentRateLimit(stkPolicy, redisClient, securitySvc, logg)).
			Post("/stk-push", controllers.PaymentStkPush(mpesaAdapter, fraudChecker, logg))
		r.With(middleware.PaymentRateLimit(refundPolicy, redisClient, securitySvc, logg)).
			Post("/{paymentId}/refund", controllers.PaymentRefund(paymentsSvc, fraudChecker, logg))
	})

	return r
}
