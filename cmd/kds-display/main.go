package main

import (
	"context"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"kds/internal/config"
	"kds/internal/feed"
	"kds/internal/httpapi"
	"kds/internal/hub"
	"kds/internal/kitchen"
	"kds/internal/logger"
	"kds/internal/models"
	"kds/internal/notify"
	"kds/internal/staffapi"
	"kds/internal/telemetry"
)

const serviceName = "kds-display"

var (
	snapshotsPublished = expvar.NewInt("kds_snapshots_published_total")
	activeOrders       = expvar.NewInt("kds_active_orders")
	activeAlerts       = expvar.NewInt("kds_active_notifications")
)

func main() {
	cfg, err := config.LoadDisplay()
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

	client := staffapi.New(cfg.StaffAPIURL, staffapi.WithToken(cfg.StaffAPIToken))
	poller := feed.New(client, feed.Options{
		Interval:     cfg.PollInterval(),
		FetchTimeout: cfg.FetchTimeout(),
		Logger:       log.WithField("component", "feed"),
	})

	h := hub.New(log.WithField("component", "hub"))
	alerter := notify.NewAlerter(cfg.Alerter, notify.AlerterConfig{
		WebhookURL:   cfg.AlertWebhookURL,
		WebhookToken: cfg.AlertWebhookToken,
		Publisher:    h,
		Logger:       log.WithField("component", "alerter"),
	})
	notifications := notify.NewManager(notify.Options{
		Alerter:      alerter,
		SoundEnabled: cfg.SoundEnabled,
		Logger:       log.WithField("component", "notify"),
	})
	mutator := kitchen.New(client, kitchen.Options{
		Strict: cfg.StrictTransitions,
		Logger: log.WithField("component", "kitchen"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchSnapshots, stopWatch := poller.Subscribe()
	defer stopWatch()
	go notifications.Watch(ctx, watchSnapshots)

	hubSnapshots, stopHubSnapshots := poller.Subscribe()
	defer stopHubSnapshots()
	go forward(ctx, hubSnapshots, func(snap feed.Snapshot) {
		snapshotsPublished.Add(1)
		activeOrders.Set(int64(len(snap.Orders)))
		publish(h, log, hub.TopicOrders, snapshotPayload(snap))
	})

	hubNotifications, stopHubNotifications := notifications.Subscribe()
	defer stopHubNotifications()
	go forward(ctx, hubNotifications, func(list []models.Notification) {
		activeAlerts.Set(int64(len(list)))
		publish(h, log, hub.TopicNotifications, list)
	})

	greet := func(c *hub.Client) {
		if snap, ok := poller.Current(); ok {
			_ = h.SendTo(c, hub.TopicOrders, snapshotPayload(snap))
		}
		_ = h.SendTo(c, hub.TopicNotifications, notifications.List())
	}

	api := httpapi.NewHandler(poller, client, mutator, notifications, httpapi.Options{
		TicketWidth:   cfg.TicketWidth,
		LateThreshold: cfg.LateThreshold(),
		Logger:        log.WithField("component", "httpapi"),
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimit.PerMinute,
		IPBurst:          cfg.RateLimit.Burst,
		StationPerMinute: cfg.RateLimit.PerMinute,
		StationBurst:     cfg.RateLimit.Burst,
		Exempt:           []string{"/healthz", "/metrics", "/realtime/"},
	})

	mux := api.Routes()
	mux.Handle("GET /metrics", expvar.Handler())
	mux.Handle("/realtime/", h.Handler("/realtime", greet))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(log, limiter.Middleware(mux)), serviceName)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.AutoStart {
		poller.Start()
	}

	go func() {
		log.WithField("addr", server.Addr).Info("kds-display listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	poller.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	notifications.Flush()
}

type snapshotView struct {
	Orders    []models.Order `json:"orders"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

func snapshotPayload(snap feed.Snapshot) snapshotView {
	orders := models.SortByCreatedAt(snap.Orders)
	return snapshotView{Orders: orders, FetchedAt: snap.FetchedAt}
}

// forward calls fn for every value until ctx ends or ch closes.
func forward[T any](ctx context.Context, ch <-chan T, fn func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case value, ok := <-ch:
			if !ok {
				return
			}
			fn(value)
		}
	}
}

func publish(h *hub.Hub, log logrus.FieldLogger, topic string, payload any) {
	if err := h.Publish(topic, payload); err != nil {
		log.WithField("topic", topic).WithError(err).Warn("realtime publish failed")
	}
}
