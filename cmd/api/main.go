package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/medstock/medstock-backend/api/routes"
	"github.com/medstock/medstock-backend/internal/fulfillment"
	"github.com/medstock/medstock-backend/internal/inventory"
	"github.com/medstock/medstock-backend/internal/points"
	"github.com/medstock/medstock-backend/internal/purchaserequests"
	"github.com/medstock/medstock-backend/internal/reports"
	"github.com/medstock/medstock-backend/internal/settlement"
	"github.com/medstock/medstock-backend/internal/users"
	"github.com/medstock/medstock-backend/pkg/config"
	"github.com/medstock/medstock-backend/pkg/db"
	"github.com/medstock/medstock-backend/pkg/instance"
	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/metrics"
	"github.com/medstock/medstock-backend/pkg/migrate"
	"github.com/medstock/medstock-backend/pkg/outbox"
	"github.com/medstock/medstock-backend/pkg/redis"
)

const (
	serviceName       = "api"
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

// listenAddr prefers the platform-assigned PORT over the configured one.
func listenAddr(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + cfg.App.Port
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(dbClient))

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(redisClient))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler, err := buildRouter(cfg, logg, dbClient, redisClient, registry, metrics.NewSettlementMetrics(registry))
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              listenAddr(cfg),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "starting api server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func buildRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	settlementMetrics *metrics.SettlementMetrics,
) (http.Handler, error) {
	conn := dbClient.DB()
	usersRepo := users.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	pointsSvc, err := points.NewService(points.ServiceParams{
		Repo:       points.NewRepository(conn),
		Users:      usersRepo,
		Tx:         dbClient,
		Outbox:     outboxSvc,
		Metrics:    settlementMetrics,
		Logger:     logg,
		TxAttempts: cfg.Settlement.TxMaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	mutator, err := inventory.NewMutator(inventory.NewRepository(conn), usersRepo, logg)
	if err != nil {
		return nil, err
	}
	recorder, err := settlement.NewRecorder(settlement.NewRepository(conn), logg, settlement.Options{
		Strict:       cfg.Settlement.Strict,
		ReportPrefix: cfg.Settlement.ReportPrefix,
	})
	if err != nil {
		return nil, err
	}
	reviewSvc, err := fulfillment.NewService(fulfillment.ServiceParams{
		Requests:   purchaserequests.NewRepository(conn),
		Users:      usersRepo,
		Inventory:  mutator,
		Settlement: recorder,
		Tx:         dbClient,
		Outbox:     outboxSvc,
		Metrics:    settlementMetrics,
		Logger:     logg,
		TxAttempts: cfg.Settlement.TxMaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	reportSvc, err := reports.NewService(reports.ServiceParams{
		Repo:       reports.NewRepository(conn),
		Users:      usersRepo,
		Points:     pointsSvc,
		Tx:         dbClient,
		Outbox:     outboxSvc,
		Metrics:    settlementMetrics,
		Logger:     logg,
		TxAttempts: cfg.Settlement.TxMaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	httpMetrics := metrics.NewHTTPMetrics(registry)
	return routes.NewRouter(cfg, logg, dbClient, redisClient, metricsHandler, httpMetrics, reviewSvc, reportSvc, pointsSvc), nil
}
