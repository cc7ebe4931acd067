package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock-backend/api/controllers"
	pointscontrollers "github.com/medstock/medstock-backend/api/controllers/points"
	prcontrollers "github.com/medstock/medstock-backend/api/controllers/purchaserequests"
	reportcontrollers "github.com/medstock/medstock-backend/api/controllers/salesreports"
	"github.com/medstock/medstock-backend/api/middleware"
	"github.com/medstock/medstock-backend/internal/fulfillment"
	"github.com/medstock/medstock-backend/internal/points"
	"github.com/medstock/medstock-backend/internal/reports"
	"github.com/medstock/medstock-backend/pkg/config"
	"github.com/medstock/medstock-backend/pkg/enums"
	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/metrics"
	"github.com/medstock/medstock-backend/pkg/pagination"
	pkgredis "github.com/medstock/medstock-backend/pkg/redis"
)

// RedisStore is the Redis surface the HTTP layer needs for idempotency,
// rate limiting and readiness.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type rateCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type reviewService interface {
	Review(ctx context.Context, input fulfillment.ReviewInput) (*fulfillment.ReviewResult, error)
}

type reportService interface {
	Get(ctx context.Context, reportID, viewerID uuid.UUID) (*reports.ReportDTO, error)
	Apply(ctx context.Context, input reports.ActionInput) (*reports.ReportDTO, error)
	RevealBuyerInfo(ctx context.Context, input reports.RevealInput) (*reports.RevealResult, error)
}

type pointsService interface {
	Charge(ctx context.Context, input points.ChargeInput) (*points.Mutation, error)
	Refund(ctx context.Context, input points.RefundInput) (*points.Mutation, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Transactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*points.TransactionPage, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	metricsHandler http.Handler,
	httpMetrics *metrics.HTTPMetrics,
	reviewSvc reviewService,
	reportSvc reportService,
	pointsSvc pointsService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	// stores stay nil interfaces without Redis
	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiterStore     rateCounter
	)
	readiness := map[string]controllers.Pinger{"db": dbP}
	if redisStore != nil {
		idempotencyStore = redisStore
		limiterStore = redisStore
		readiness["redis"] = redisStore
	}
	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.IPLimit, cfg.RateLimit.UserLimit)
	idempotent := middleware.Idempotency(idempotencyStore, logg, middleware.ReplayStandard)
	idempotentLedger := middleware.Idempotency(idempotencyStore, logg, middleware.ReplayExtended)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(apiPolicy, limiterStore, logg))

		r.Route("/purchase-requests", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.With(idempotentLedger).Post("/{purchaseRequestId}/approve", prcontrollers.Review(reviewSvc, logg))
		})

		r.Route("/sales-approval-reports", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleSeller))
			r.Get("/{reportId}", reportcontrollers.Detail(reportSvc, logg))
			r.With(idempotent).Post("/{reportId}", reportcontrollers.Action(reportSvc, logg))
			r.With(middleware.RequireRole(logg, enums.UserRoleSeller), idempotent).
				Post("/{reportId}/reveal-buyer-info", reportcontrollers.RevealBuyerInfo(reportSvc, logg))
		})

		r.Route("/points", func(r chi.Router) {
			r.Get("/balance", pointscontrollers.Balance(pointsSvc, logg))
			r.Get("/transactions", pointscontrollers.Transactions(pointsSvc, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
				r.With(idempotentLedger).Post("/charge", pointscontrollers.Charge(pointsSvc, logg))
				r.With(idempotentLedger).Post("/refund", pointscontrollers.Refund(pointsSvc, logg))
			})
		})
	})

	return r
}
