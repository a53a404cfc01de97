package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	alertapp "signal-alerts/internal/alerts/application"
	alertrepo "signal-alerts/internal/alerts/infrastructure/postgres"
	"signal-alerts/internal/alerts/interfaces/consumer"
	apihttp "signal-alerts/internal/api/http"
	"signal-alerts/internal/audit"
	"signal-alerts/internal/auth"
	"signal-alerts/internal/config"
	masterapp "signal-alerts/internal/masterdata/application"
	notifyapp "signal-alerts/internal/notifications/application"
	"signal-alerts/internal/notifications/email"
	notifyrepo "signal-alerts/internal/notifications/infrastructure/postgres"
	"signal-alerts/internal/notifications/notify"
	"signal-alerts/internal/observability/metrics"
	"signal-alerts/internal/queue"
	"signal-alerts/internal/queue/kafkaq"
	"signal-alerts/internal/queue/natsq"
	queuerepo "signal-alerts/internal/queue/postgres"
	"signal-alerts/internal/realtime"
	telemetryapp "signal-alerts/internal/telemetry/application"
	telemetrypostgres "signal-alerts/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		fatal(logger, "db open error", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		fatal(logger, "db ping error", err)
	}
	metrics.Init(db, logger)

	// Signal metadata, alert persistence and the in-memory mirror.
	directory := masterapp.NewDirectory(cfg.Directory.CacheTTL)
	store := alertapp.NewStore()
	sessions, err := alertrepo.NewUnitOfWorkFactory(db, nil, nil)
	if err != nil {
		fatal(logger, "unit of work error", err)
	}

	readings := telemetrypostgres.NewReadingRepository(db, telemetrypostgres.WithTable(cfg.Timeseries.Table))
	batchWriter, err := telemetryapp.NewBatchWriter(readings,
		telemetryapp.WithBatchSize(cfg.Timeseries.BatchSize),
		telemetryapp.WithBufferSize(cfg.Timeseries.BufferSize),
		telemetryapp.WithFlushInterval(cfg.Timeseries.FlushInterval),
		telemetryapp.WithFlushTimeout(cfg.Timeseries.FlushTimeout),
		telemetryapp.WithLogger(logger),
	)
	if err != nil {
		fatal(logger, "batch writer error", err)
	}

	// Notification delivery: inbox, realtime push, email and chat webhook.
	hub := realtime.NewHub(0, logger)
	var publisher notifyapp.Publisher = hub
	var backplane *realtime.RedisBackplane
	if cfg.Realtime.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Realtime.RedisAddr, Password: cfg.Realtime.RedisPassword})
		defer client.Close()
		backplane, err = realtime.NewRedisBackplane(client, cfg.Realtime.RedisChannel, hub, logger)
		if err != nil {
			fatal(logger, "redis backplane error", err)
		}
		publisher = backplane
	}

	mailer, err := buildMailer(ctx, cfg.Email, logger)
	if err != nil {
		fatal(logger, "email registry error", err)
	}

	tpl, err := notify.NewTemplate(cfg.Notifications.Template)
	if err != nil {
		fatal(logger, "notification template error", err)
	}
	notificationStore := notifyrepo.NewNotificationStore(db)
	fanOutOpts := []notifyapp.FanOutOption{
		notifyapp.WithPublisher(publisher),
		notifyapp.WithTemplate(tpl),
		notifyapp.WithPriority(cfg.Notifications.Priority),
		notifyapp.WithExpiresAfter(cfg.Notifications.ExpiresAfter),
		notifyapp.WithEmailTimeout(cfg.Notifications.EmailTimeout),
		notifyapp.WithEmailConcurrency(cfg.Notifications.EmailConcurrency),
		notifyapp.WithFanOutLogger(logger),
	}
	if mailer.Configured() {
		fanOutOpts = append(fanOutOpts, notifyapp.WithMailer(mailer))
	}
	fanOut, err := notifyapp.NewFanOut(notificationStore, notifyrepo.NewUserRepository(db, ""), fanOutOpts...)
	if err != nil {
		fatal(logger, "notification fan-out error", err)
	}

	var secondaries []notify.Notifier
	if cfg.Notifications.WebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.Notifications.WebhookURL)
		if err != nil {
			fatal(logger, "webhook channel error", err)
		}
		webhook, err := notify.NewChannelNotifier(channel, tpl, notify.WithDedupeWindow(cfg.Notifications.DedupeWindow))
		if err != nil {
			fatal(logger, "webhook notifier error", err)
		}
		secondaries = append(secondaries, webhook)
	}
	notifier := notify.NewMultiNotifier(logger, fanOut, secondaries...)

	service, err := alertapp.NewService(
		alertapp.SessionFunc(func(ctx context.Context) (alertapp.Session, error) {
			return sessions.Begin(ctx)
		}),
		directory,
		store,
		alertapp.WithTimeseriesWriter(batchWriter),
		alertapp.WithTimeseriesTimeout(cfg.Timeseries.Timeout),
		alertapp.WithNotifier(notifier),
		alertapp.WithLogger(logger),
	)
	if err != nil {
		fatal(logger, "alert service error", err)
	}
	if cfg.Alerts.RehydrateOnStart {
		count, err := service.RehydrateMirror(ctx)
		if err != nil {
			fatal(logger, "mirror rehydrate error", err)
		}
		logger.Info("alert mirror rehydrated", "active", count)
	}
	metrics.RegisterMirrorGauge(store.MirrorSize)

	source, err := openSource(ctx, cfg.Queue, logger)
	if err != nil {
		fatal(logger, "queue source error", err)
	}
	defer source.Close()

	readingConsumer, err := consumer.New(source, service,
		consumer.WithWorkers(cfg.Queue.Workers),
		consumer.WithInFlight(cfg.Queue.InFlight),
		consumer.WithProcessingTimeout(cfg.Queue.ProcessingTimeout),
		consumer.WithDeadLetters(queuerepo.NewDeadLetterStore(db), cfg.Queue.Driver),
		consumer.WithLogger(logger),
	)
	if err != nil {
		fatal(logger, "consumer error", err)
	}

	inbox, err := notifyapp.NewInbox(notificationStore, nil)
	if err != nil {
		fatal(logger, "inbox error", err)
	}

	auditRepo := audit.NewRepository(db)
	policy := auth.NewDefaultPolicy(nil, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy)
	authMiddleware.Logger = logger

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Alerts:        apihttp.NewAlertsHandler(service),
		Signals:       apihttp.NewSignalsHandler(service, auditRepo),
		Notifications: apihttp.NewNotificationsHandler(inbox, auditRepo),
		Stream:        realtime.NewSSEHandler(hub, auth.UserFromRequest),
		WebSocket:     realtime.NewWebSocketHandler(hub, auth.UserFromRequest, nil, logger),
		Metrics:       promhttp.Handler(),
		Health:        db.PingContext,
		Auth:          authMiddleware,
		Logger:        logger,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	// The batch writer outlives the consumer so readings accepted during the drain are flushed.
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	writerDone := make(chan error, 1)
	go func() { writerDone <- batchWriter.Run(writerCtx) }()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer stopWriter()
		return readingConsumer.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if backplane != nil {
		group.Go(func() error {
			return backplane.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error("service stopped with error", "error", err)
	}
	if err := <-writerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("batch writer stopped with error", "error", err)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func openSource(ctx context.Context, cfg config.QueueConfig, logger *slog.Logger) (queue.Source, error) {
	switch cfg.Driver {
	case "kafka":
		return kafkaq.New(kafkaq.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
			MaxWait: cfg.Kafka.MaxWait,
		}, logger)
	default:
		return natsq.Dial(ctx, natsq.Config{
			URL:           cfg.NATS.URL,
			Stream:        cfg.NATS.Stream,
			Subject:       cfg.NATS.Subject,
			Durable:       cfg.NATS.Durable,
			CreateStream:  cfg.NATS.CreateStream,
			AckWait:       cfg.NATS.AckWait,
			MaxAckPending: cfg.InFlight,
		}, logger)
	}
}

func buildMailer(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (*email.Registry, error) {
	registry := email.NewRegistry(cfg.From, logger)
	registry.Register(email.NewSMTPProvider(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
	}))
	registry.Register(email.NewResendProvider(cfg.Resend.APIKey))
	if cfg.Provider == "ses" || containsFold(cfg.Fallback, "ses") {
		ses, err := email.NewSESProvider(ctx, cfg.SES.Region)
		if err != nil {
			return nil, err
		}
		registry.Register(ses)
	}
	if cfg.Provider != "" {
		if err := registry.SetPrimary(cfg.Provider); err != nil {
			return nil, err
		}
	}
	if len(cfg.Fallback) > 0 {
		if err := registry.SetFallback(cfg.Fallback...); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}
