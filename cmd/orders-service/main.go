package main

import (
	"context"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"kds/internal/config"
	"kds/internal/events"
	"kds/internal/httpapi"
	"kds/internal/logger"
	"kds/internal/ordersapi"
	"kds/internal/store/postgres"
	"kds/internal/telemetry"
)

const serviceName = "orders-service"

func main() {
	cfg, err := config.LoadOrders()
	logger.Init(cfg.Log.Logger())
	log := logger.New(serviceName)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	shutdownTelemetry := telemetry.Setup(serviceName, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer pool.Close()

	publisher := newPublisher(cfg, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.WithError(err).Warn("close event publisher")
		}
	}()

	store := postgres.NewStore(pool)
	api := ordersapi.NewHandler(store, publisher, ordersapi.Options{
		Logger: log.WithField("component", "ordersapi"),
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimit.PerMinute,
		IPBurst:          cfg.RateLimit.Burst,
		StationPerMinute: cfg.RateLimit.PerMinute,
		StationBurst:     cfg.RateLimit.Burst,
		Exempt:           []string{"/healthz", "/metrics"},
	})

	mux := api.Routes()
	mux.Handle("GET /metrics", expvar.Handler())

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(log, limiter.Middleware(mux)), serviceName)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("orders-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}

// newPublisher falls back to a no-op publisher when RabbitMQ is not
// configured or not reachable at startup.
func newPublisher(cfg config.Orders, log logrus.FieldLogger) events.Publisher {
	if cfg.RabbitMQURL == "" {
		log.Info("RABBITMQ_URL not set, order events are not published")
		return events.NoopPublisher{}
	}
	publisher, err := events.Dial(cfg.RabbitMQURL, cfg.EventsExchange, serviceName)
	if err != nil {
		log.WithError(err).Warn("rabbitmq unavailable, order events are not published")
		return events.NoopPublisher{}
	}
	log.WithField("exchange", cfg.EventsExchange).Info("publishing order events")
	return publisher
}
